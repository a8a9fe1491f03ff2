// Package keys repairs ownership and mode on the signing-key tree
// after a checkout. A hard reset leaves key files owned by the deploy
// user with loose modes; the mail service refuses (or worse, silently
// fails) to sign with a world-readable private key.
package keys

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
)

// Spec names the tree to repair and the state it must end up in.
type Spec struct {
	// Dir is the root of the key material tree.
	Dir string
	// KeyFile is the private key expected inside Dir, relative to it.
	KeyFile string
	// Owner and Group are looked up at repair time. Empty means leave
	// ownership alone (useful on hosts where the deploy user cannot
	// chown).
	Owner string
	Group string
	// DirMode and FileMode are applied to directories and regular
	// files respectively.
	DirMode  os.FileMode
	FileMode os.FileMode
	// Required makes a missing KeyFile fatal instead of a warning.
	Required bool
}

// Outcome reports what a repair accomplished.
type Outcome struct {
	// Applied is true when the key file exists and the tree was
	// walked.
	Applied bool
	// Warning carries non-fatal problems: a missing optional key, or
	// individual entries that could not be chowned/chmodded.
	Warning string
}

// Repair walks spec.Dir applying ownership and modes, then verifies
// the key file exists. Missing tree or key is a warning unless
// spec.Required, in which case it is an error. Repair is idempotent:
// re-running it converges on the same ownership and mode state.
func Repair(spec Spec) (Outcome, error) {
	uid, gid, err := resolveOwner(spec.Owner, spec.Group)
	if err != nil {
		return Outcome{}, err
	}

	if _, err := os.Stat(spec.Dir); err != nil {
		if os.IsNotExist(err) {
			if spec.Required {
				return Outcome{}, fmt.Errorf("key directory %s does not exist", spec.Dir)
			}
			return Outcome{Warning: fmt.Sprintf("key directory %s does not exist; signing will fail until keys are provisioned", spec.Dir)}, nil
		}
		return Outcome{}, fmt.Errorf("stat %s: %w", spec.Dir, err)
	}

	var skipped []string
	walkErr := filepath.WalkDir(spec.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		mode := spec.FileMode
		if d.IsDir() {
			mode = spec.DirMode
		}
		if mode != 0 {
			if err := os.Chmod(path, mode); err != nil {
				skipped = append(skipped, fmt.Sprintf("chmod %s: %v", path, err))
			}
		}
		if uid >= 0 {
			if err := os.Chown(path, uid, gid); err != nil {
				skipped = append(skipped, fmt.Sprintf("chown %s: %v", path, err))
			}
		}
		return nil
	})
	if walkErr != nil {
		return Outcome{}, fmt.Errorf("walk %s: %w", spec.Dir, walkErr)
	}
	if len(skipped) > 0 && spec.Required {
		return Outcome{}, fmt.Errorf("repair %s: %s", spec.Dir, strings.Join(skipped, "; "))
	}

	out := Outcome{}
	if len(skipped) > 0 {
		out.Warning = strings.Join(skipped, "; ")
	}

	keyPath := filepath.Join(spec.Dir, spec.KeyFile)
	if _, err := os.Stat(keyPath); err != nil {
		if os.IsNotExist(err) {
			if spec.Required {
				return Outcome{}, fmt.Errorf("required key file %s is missing", keyPath)
			}
			warn := fmt.Sprintf("key file %s is missing; signing will silently fail", keyPath)
			if out.Warning != "" {
				warn = out.Warning + "; " + warn
			}
			out.Warning = warn
			return out, nil
		}
		return Outcome{}, fmt.Errorf("stat %s: %w", keyPath, err)
	}

	out.Applied = true
	return out, nil
}

// resolveOwner maps user/group names to numeric IDs. Empty owner
// returns uid -1, which disables chown in the walk.
func resolveOwner(owner, group string) (uid, gid int, err error) {
	if owner == "" {
		return -1, -1, nil
	}
	u, err := user.Lookup(owner)
	if err != nil {
		return 0, 0, fmt.Errorf("lookup user %q: %w", owner, err)
	}
	uid, err = strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("parse uid %q: %w", u.Uid, err)
	}

	gid, err = strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("parse gid %q: %w", u.Gid, err)
	}
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return 0, 0, fmt.Errorf("lookup group %q: %w", group, err)
		}
		gid, err = strconv.Atoi(g.Gid)
		if err != nil {
			return 0, 0, fmt.Errorf("parse gid %q: %w", g.Gid, err)
		}
	}
	return uid, gid, nil
}
