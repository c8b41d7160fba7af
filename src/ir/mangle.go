package ir

import "strings"

// Mangle joins a namespace path and a name with the backslash separator, the name-mangling scheme
// that is contract with the backend and must be bit-exact to preserve linkage.
func Mangle(ns []string, name string) string {
	if len(ns) == 0 {
		return name
	}
	return strings.Join(ns, `\`) + `\` + name
}

// MangleMethod mangles a method name with its receiver's base name.
func MangleMethod(ns []string, receiver, method string) string {
	return Mangle(ns, receiver+"\\"+method)
}

// MangleInstantiation mangles a polymorphic composite instantiation with its argument types.
func MangleInstantiation(ns []string, base string, args []Type) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return Mangle(ns, base) + "<" + strings.Join(parts, ",") + ">"
}
