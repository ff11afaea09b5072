package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tagspeak/tagspeak/tsapi"
)

// Confine resolves request against the virtual directory cwd.
// Both are root-anchored ("/" is the sandbox root); a request starting with a separator is taken from the root.
// Either separator, '/' or '\\', is accepted.
// The result is a clean virtual path, and ok is false when the request climbs above the root
// at any point, even if a later component would climb back in.
func Confine(cwd string, request string) (virtual string, ok bool) {
	var stack []string
	if !strings.HasPrefix(request, "/") && !strings.HasPrefix(request, `\`) {
		for _, c := range splitPath(cwd) {
			switch c {
			case "", ".":
			case "..":
				if len(stack) == 0 {
					return "", false
				}
				stack = stack[:len(stack)-1]
			default:
				stack = append(stack, c)
			}
		}
	}
	for _, c := range splitPath(request) {
		switch c {
		case "", ".":
		case "..":
			if len(stack) == 0 {
				return "", false
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, c)
		}
	}
	return "/" + strings.Join(stack, "/"), true
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
}

// Resolve maps a request taken from the root directory to a host path under root.
//
// Errors:
//
//   - tagspeak-error-sandbox-required -- if root is empty.
//   - tagspeak-error-sandbox-boundary -- if the request escapes root.
func Resolve(root string, request string) (string, error) {
	return ResolveFrom(root, "/", request)
}

// ResolveFrom maps a request taken from the virtual directory cwd to a host path under root.
//
// Errors:
//
//   - tagspeak-error-sandbox-required -- if root is empty.
//   - tagspeak-error-sandbox-boundary -- if the request escapes root.
func ResolveFrom(root string, cwd string, request string) (string, error) {
	if root == "" {
		return "", tsapi.ErrorSandboxRequired("path access")
	}
	v, ok := Confine(cwd, request)
	if !ok {
		return "", tsapi.ErrorSandboxBoundary(root, request)
	}
	root = filepath.Clean(root)
	host := filepath.Join(root, filepath.FromSlash(v))
	if !within(root, host) {
		return "", tsapi.ErrorSandboxBoundary(root, request)
	}
	return host, nil
}

// Virtual maps a host path back to its root-anchored form.
// ok is false when host is not under root.
func Virtual(root string, host string) (string, bool) {
	root, host = filepath.Clean(root), filepath.Clean(host)
	if !within(root, host) {
		return "", false
	}
	rel, err := filepath.Rel(root, host)
	if err != nil {
		return "", false
	}
	if rel == "." {
		return "/", true
	}
	return "/" + filepath.ToSlash(rel), true
}

func within(root, p string) bool {
	if p == root {
		return true
	}
	if strings.HasSuffix(root, string(os.PathSeparator)) {
		return strings.HasPrefix(p, root)
	}
	return strings.HasPrefix(p, root+string(os.PathSeparator))
}
