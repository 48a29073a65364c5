package schemapin

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/schema"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning. Used by
	// the lint command so one bad resource does not hide the rest.
	LoadModeCollectAll
)

// LoadDir compiles every .cue file under dir and returns the pinned
// resources keyed by resource ID. In LoadModeCollectAll the returned map
// holds every resource that compiled, alongside the errors for those
// that did not.
func LoadDir(dir string, mode LoadMode) (map[string]*schema.Resource, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{fmt.Errorf("pinned schema directory not found: %s", dir)}
	}
	if err != nil {
		return nil, []error{fmt.Errorf("accessing pinned schema directory: %w", err)}
	}
	if !info.IsDir() {
		return nil, []error{fmt.Errorf("not a directory: %s", dir)}
	}

	cueFiles, err := findCUEFiles(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("scanning %s: %w", dir, err)}
	}
	if len(cueFiles) == 0 {
		return nil, []error{fmt.Errorf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{fmt.Errorf("no CUE instances loaded from %s", dir)}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{fmt.Errorf("loading CUE files: %w", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	resourcesVal := value.LookupPath(cue.ParsePath("resource"))
	if !resourcesVal.Exists() {
		return nil, []error{fmt.Errorf("no resource definitions found in %s", dir)}
	}

	iter, err := resourcesVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	resources := make(map[string]*schema.Resource)
	var errs []error
	for iter.Next() {
		id := iter.Label()
		res, err := CompileResource(id, iter.Value())
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return resources, errs
			}
			continue
		}
		resources[id] = res
	}

	if len(resources) == 0 && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("no resource definitions found in %s", dir))
	}
	return resources, errs
}

// findCUEFiles walks dir and returns all .cue file paths.
func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
