package tui

type View int

const (
	ViewIdentities View = iota
	ViewProviders
	ViewPosts
	ViewReport
)

var viewNames = []string{"identities", "providers", "posts", "report"}

func (v View) String() string {
	if int(v) < len(viewNames) {
		return viewNames[v]
	}
	return "unknown"
}

func (v View) next() View { return (v + 1) % View(len(viewNames)) }

func (v View) prev() View { return (v + View(len(viewNames)) - 1) % View(len(viewNames)) }
