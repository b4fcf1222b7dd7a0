package inventory

import "strings"

// Mask replaces sensitive values on every display surface.
const Mask = "********"

// Field is one host variable.
type Field struct {
	Key   string
	Value string
}

// Listing is a host as shown to the user.
type Listing struct {
	Name   string
	Mode   AuthMode
	Fields []Field
}

// Sensitive reports whether a variable named key holds a secret or key
// reference. "pass" also covers ansible_ssh_pass.
func Sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "pass") || strings.Contains(k, "key")
}

// Masked returns the host's fields with sensitive values replaced by Mask.
func (h Host) Masked() []Field {
	fields := h.Fields()
	for i := range fields {
		if Sensitive(fields[i].Key) {
			fields[i].Value = Mask
		}
	}
	return fields
}

// List returns every host in insertion order with sensitive values masked.
func (d *Document) List() []Listing {
	out := make([]Listing, 0, d.Len())
	for _, n := range d.names {
		h := d.hosts[n]
		out = append(out, Listing{Name: n, Mode: h.Mode(), Fields: h.Masked()})
	}
	return out
}
