package batch

import (
	"path/filepath"
	"strings"
)

// FileRef is a resolved local file reference.
type FileRef struct {
	Path string
	// Ext is the extension without the leading dot, empty when the file has none.
	Ext string
}

// NewFileRef derives the extension for path.
func NewFileRef(path string) FileRef {
	return FileRef{Path: path, Ext: extension(path)}
}

// ExtOr returns the extension or fallback when there is none.
func (f FileRef) ExtOr(fallback string) string {
	if f.Ext == "" {
		return fallback
	}
	return f.Ext
}

func extension(path string) string {
	base := filepath.Base(path)
	// dot-files like ".profile" carry no extension
	base = strings.TrimLeft(base, ".")
	idx := strings.LastIndexByte(base, '.')
	if idx < 0 || idx == len(base)-1 {
		return ""
	}
	return base[idx+1:]
}

// Resolver validates caller supplied path lists. It never touches the
// filesystem; missing files fail later inside the capability.
type Resolver struct {
	// Root, when set, confines every path to this directory.
	Root string
}

// Resolve converts a decoded "paths" argument into file references.
func (r Resolver) Resolve(raw any) ([]FileRef, error) {
	items, ok := raw.([]any)
	if !ok {
		if strs, isStrs := raw.([]string); isStrs {
			items = make([]any, len(strs))
			for i, s := range strs {
				items[i] = s
			}
		} else {
			return nil, invalidArgs("Missing image paths")
		}
	}
	if len(items) == 0 {
		return nil, invalidArgs("Missing image paths")
	}

	refs := make([]FileRef, 0, len(items))
	for _, item := range items {
		path, ok := item.(string)
		if !ok {
			return nil, invalidArgs("Missing image paths")
		}
		if r.Root != "" {
			confined, ok := confine(r.Root, path)
			if !ok {
				return nil, invalidArgs("path outside allowed root: " + path)
			}
			path = confined
		}
		refs = append(refs, NewFileRef(path))
	}
	return refs, nil
}

// confine resolves relative paths against root and reports whether the
// result stays inside it.
func confine(root, path string) (string, bool) {
	root = filepath.Clean(root)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}
