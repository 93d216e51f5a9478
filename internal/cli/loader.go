package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/quellql/quell/internal/schema"
)

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeBadSchema   = "E007" // Schema document invalid
	ErrCodeBadManifest = "E008" // Manifest invalid
	ErrCodeCompile     = "E009" // Statement compilation failed
)

// LoadSchema loads table declarations from the CUE files in dir.
//
// Schema documents declare tables under a top-level `table` struct:
//
//	table: users: columns: [
//		{name: "id", type: "integer"},
//		{name: "name", type: "text"},
//		{name: "created", type: "time", converter: "time.unix"},
//	]
//
// Column entries accept name, type, nullable, and converter fields; types
// and converter names follow the schema package's registries.
func LoadSchema(dir string) (map[string]schema.Table, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	return tablesFromValue(value)
}

// tablesFromValue extracts table declarations from a built CUE value.
func tablesFromValue(value cue.Value) (map[string]schema.Table, error) {
	tablesVal := value.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return nil, &LoadError{Code: ErrCodeBadSchema, Message: "no `table` declarations found in schema"}
	}

	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBadSchema, Message: fmt.Sprintf("iterating tables: %v", err)}
	}

	tables := make(map[string]schema.Table)
	for iter.Next() {
		name := iter.Selector().Unquoted()
		t, err := tableFromValue(name, iter.Value())
		if err != nil {
			return nil, err
		}
		tables[name] = t
	}
	if len(tables) == 0 {
		return nil, &LoadError{Code: ErrCodeBadSchema, Message: "schema declares no tables"}
	}
	return tables, nil
}

// tableFromValue builds one table through the schema builder API.
func tableFromValue(name string, v cue.Value) (schema.Table, error) {
	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return schema.Table{}, &LoadError{
			Code:    ErrCodeBadSchema,
			Message: fmt.Sprintf("table %s: columns is required", name),
			Pos:     v.Pos(),
		}
	}

	iter, err := colsVal.List()
	if err != nil {
		return schema.Table{}, &LoadError{
			Code:    ErrCodeBadSchema,
			Message: fmt.Sprintf("table %s: columns must be a list: %v", name, err),
			Pos:     colsVal.Pos(),
		}
	}

	b := schema.NewTable(name)
	for iter.Next() {
		col := iter.Value()
		colName, err := stringField(col, "name")
		if err != nil {
			return schema.Table{}, badColumn(name, col, err)
		}
		typeName, err := stringField(col, "type")
		if err != nil {
			return schema.Table{}, badColumn(name, col, err)
		}
		colType, err := schema.TypeFromString(typeName)
		if err != nil {
			return schema.Table{}, badColumn(name, col, err)
		}

		var opts []schema.ColumnOption
		if nullableVal := col.LookupPath(cue.ParsePath("nullable")); nullableVal.Exists() {
			nullable, err := nullableVal.Bool()
			if err != nil {
				return schema.Table{}, badColumn(name, col, err)
			}
			if nullable {
				opts = append(opts, schema.Nullable())
			}
		}
		if convVal := col.LookupPath(cue.ParsePath("converter")); convVal.Exists() {
			convName, err := convVal.String()
			if err != nil {
				return schema.Table{}, badColumn(name, col, err)
			}
			conv, err := schema.ConverterFromString(convName)
			if err != nil {
				return schema.Table{}, badColumn(name, col, err)
			}
			if conv != nil {
				opts = append(opts, schema.WithConverter(conv))
			}
		}

		b.Column(colName, colType, opts...)
	}

	t, err := b.Build()
	if err != nil {
		return schema.Table{}, &LoadError{
			Code:    ErrCodeBadSchema,
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return t, nil
}

func stringField(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", fmt.Errorf("%s is required", field)
	}
	s, err := fv.String()
	if err != nil {
		return "", fmt.Errorf("%s: %v", field, err)
	}
	return s, nil
}

func badColumn(table string, v cue.Value, err error) *LoadError {
	return &LoadError{
		Code:    ErrCodeBadSchema,
		Message: fmt.Sprintf("table %s: %v", table, err),
		Pos:     v.Pos(),
	}
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
