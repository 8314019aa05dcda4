// Package bank implements the named container of loaded objects (spec
// §3 "Typed objects": "Banks own children via a name->handle export
// table plus a dependency table").
package bank

import "github.com/olofson/a2core/rchm"

// Bank is a named export table plus a dependency list, per spec §3.
type Bank struct {
	Name    string
	exports map[string]rchm.Handle
	deps    []rchm.Handle
}

func New(name string) *Bank {
	return &Bank{Name: name, exports: make(map[string]rchm.Handle)}
}

// Export registers name -> h in the bank's export table.
func (b *Bank) Export(name string, h rchm.Handle) { b.exports[name] = h }

// Lookup resolves a name to a handle.
func (b *Bank) Lookup(name string) (rchm.Handle, bool) {
	h, ok := b.exports[name]
	return h, ok
}

// AddDependency records that this bank depends on (holds a reference
// to) another bank/object's handle, released when the bank is.
func (b *Bank) AddDependency(h rchm.Handle) { b.deps = append(b.deps, h) }

// Dependencies returns the bank's recorded dependency handles.
func (b *Bank) Dependencies() []rchm.Handle { return b.deps }

// Names returns every exported name, for "-x" export-tree printing.
func (b *Bank) Names() []string {
	names := make([]string, 0, len(b.exports))
	for n := range b.exports {
		names = append(names, n)
	}
	return names
}
