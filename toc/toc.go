package toc

import (
	"sort"

	"github.com/mikehamer/crazyclient/crtp"
)

// Entry is one variable announced by the firmware.
type Entry struct {
	ID       uint16
	Group    string
	Name     string
	Type     VariableType
	ReadOnly bool
}

// FullName is "group.name", the form used to address a variable.
func (e Entry) FullName() string {
	if e.Group == "" {
		return e.Name
	}
	return e.Group + "." + e.Name
}

// Toc is a complete table of contents for one port.
type Toc struct {
	Port    crtp.Port
	CRC     uint32
	Entries []Entry

	byName map[string]int
}

func newToc(port crtp.Port, crc uint32, entries []Entry) *Toc {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	t := &Toc{
		Port:    port,
		CRC:     crc,
		Entries: entries,
		byName:  make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		t.byName[e.FullName()] = i
	}
	return t
}

func (t *Toc) Len() int {
	return len(t.Entries)
}

func (t *Toc) Find(fullName string) (Entry, bool) {
	i, ok := t.byName[fullName]
	if !ok {
		return Entry{}, false
	}
	return t.Entries[i], true
}

func (t *Toc) Get(id uint16) (Entry, bool) {
	i := sort.Search(len(t.Entries), func(i int) bool { return t.Entries[i].ID >= id })
	if i < len(t.Entries) && t.Entries[i].ID == id {
		return t.Entries[i], true
	}
	return Entry{}, false
}

// Names lists the full names in id order.
func (t *Toc) Names() []string {
	list := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		list[i] = e.FullName()
	}
	return list
}
