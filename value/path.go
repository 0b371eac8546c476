package value

import "strings"

// Path identifies where in the loaded document a Value was read from: a
// '/'-joined crumb trail from the document root, plus optional
// line/column recorded by the loader.
type Path struct {
	Crumbs []string
	Line   int
	Column int
}

// Root is the empty path, identifying the document root.
var Root = Path{}

// Child returns the path one level deeper, through the given crumb.
func (p Path) Child(crumb string) Path {
	c := make([]string, len(p.Crumbs)+1)
	copy(c, p.Crumbs)
	c[len(p.Crumbs)] = crumb
	return Path{Crumbs: c}
}

// WithPos returns a copy of p carrying the given source position.
func (p Path) WithPos(line, col int) Path {
	p.Line = line
	p.Column = col
	return p
}

// String renders the path as a '/'-joined crumb trail, e.g. "/Resources/B/Properties".
func (p Path) String() string {
	if len(p.Crumbs) == 0 {
		return "/"
	}
	return "/" + strings.Join(p.Crumbs, "/")
}

// Last returns the final crumb, or "" if the path is the root.
func (p Path) Last() string {
	if len(p.Crumbs) == 0 {
		return ""
	}
	return p.Crumbs[len(p.Crumbs)-1]
}
