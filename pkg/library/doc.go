// Package library finds the photos under a library root.
//
// Scan walks the root depth first. Within each directory photos come first in
// name order, then subdirectories in name order, so the same tree always
// yields the same item order. Each item's key is its path relative to the
// root with forward slashes, which is what the journal records.
//
//	items, err := library.NewScanner(afero.NewOsFs(), "/photos", log).Scan()
//
// Only an unreadable root is an error. Subdirectories that cannot be read are
// logged and skipped.
package library
