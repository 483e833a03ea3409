// Package archive assembles the Docker build context for the Logstash image
// under test. The build is deterministic: identical inputs produce a
// byte-identical tar artifact, so image layers cache across runs.
package archive

import (
	"archive/tar"
	"bytes"
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"text/template"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/logstash-acceptor/types"
)

//go:embed templates/config templates/pipeline
var templateFS embed.FS

const (
	// ArchiveName is the artifact file name inside the cache directory.
	ArchiveName = "image.tar"
	// PipelineName is the assembled pipeline definition file.
	PipelineName = "logstash.conf"
	// ScriptsDirName is the artifact subdirectory for ruby scripts.
	ScriptsDirName = "scripts"
	// PatternsDirName is the artifact subdirectory for grok patterns.
	PatternsDirName = "patterns"

	inputTemplateName  = "input.conf"
	outputTemplateName = "output.conf"
	placeholderName    = ".keep"

	entryMode = 0o644
)

// Entries carry a zero timestamp so repeated builds from identical inputs
// hash the same.
var entryTime = time.Unix(0, 0)

// Params is the named parameter context every template is rendered against.
// Rendering is strict: referencing a parameter that is not present here fails
// the build.
type Params struct {
	InputPort    int
	OutputPort   int
	APIPort      int
	PipelineName string
	ScriptsDir   string
	PatternsDir  string
}

func (p Params) context() map[string]any {
	return map[string]any{
		"InputPort":    p.InputPort,
		"OutputPort":   p.OutputPort,
		"APIPort":      p.APIPort,
		"PipelineName": p.PipelineName,
		"ScriptsDir":   p.ScriptsDir,
		"PatternsDir":  p.PatternsDir,
	}
}

// DefaultParams returns the parameter context for the stock layout and the
// given port bindings.
func DefaultParams(inputPort, outputPort, apiPort int) Params {
	return Params{
		InputPort:    inputPort,
		OutputPort:   outputPort,
		APIPort:      apiPort,
		PipelineName: PipelineName,
		ScriptsDir:   ScriptsDirName,
		PatternsDir:  PatternsDirName,
	}
}

// Builder renders the configuration templates and assembles the build
// artifact. Staging copies of every rendered file are written to the cache
// directory and intentionally left behind for inspection.
type Builder struct {
	cacheDir string
	log      log.Logger
}

func NewBuilder(cacheDir string, logger log.Logger) *Builder {
	return &Builder{cacheDir: cacheDir, log: logger}
}

// Build produces the tar artifact from the parameter context, the ordered
// rule fragment list and the auxiliary file lists, and returns its path.
func (b *Builder) Build(params Params, rules, scripts, patterns []string) (string, error) {
	archivePath := filepath.Join(b.cacheDir, ArchiveName)
	f, err := os.Create(archivePath)
	if err != nil {
		return "", types.NewIOError(archivePath, errors.Wrap(err, "creating artifact"))
	}
	defer f.Close()

	tw := tar.NewWriter(f)

	if err := b.addConfigTemplates(tw, params); err != nil {
		return "", err
	}
	if err := b.addPipeline(tw, params, rules); err != nil {
		return "", err
	}
	if err := b.addAuxiliary(tw, params.ScriptsDir, scripts); err != nil {
		return "", err
	}
	if err := b.addAuxiliary(tw, params.PatternsDir, patterns); err != nil {
		return "", err
	}

	if err := tw.Close(); err != nil {
		return "", types.NewIOError(archivePath, errors.Wrap(err, "finalizing artifact"))
	}
	if err := f.Close(); err != nil {
		return "", types.NewIOError(archivePath, errors.Wrap(err, "closing artifact"))
	}

	b.log.Debug("Assembled build artifact", "path", archivePath, "rules", len(rules))
	return archivePath, nil
}

// addConfigTemplates renders every fixed configuration template in sorted name
// order so the entry order inside the artifact is stable.
func (b *Builder) addConfigTemplates(tw *tar.Writer, params Params) error {
	names, err := templateNames("templates/config")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		rendered, err := b.render(path.Join("templates/config", name), params)
		if err != nil {
			return err
		}
		if err := b.stage(name, rendered); err != nil {
			return err
		}
		if err := addEntry(tw, name, rendered); err != nil {
			return err
		}
	}
	return nil
}

// addPipeline builds the single pipeline definition: the rendered input stage,
// then the raw bytes of every rule fragment in filename order, then the
// rendered output stage.
func (b *Builder) addPipeline(tw *tar.Writer, params Params, rules []string) error {
	var pipeline bytes.Buffer

	input, err := b.render(path.Join("templates/pipeline", inputTemplateName), params)
	if err != nil {
		return err
	}
	pipeline.Write(input)

	for _, rule := range rules {
		if base := filepath.Base(rule); base == "." || base == string(filepath.Separator) {
			return types.NewConfigurationError("assembling pipeline",
				errors.Errorf("rule path %q has no usable base name", rule))
		}
		data, err := os.ReadFile(rule)
		if err != nil {
			return types.NewIOError(rule, errors.Wrap(err, "reading rule fragment"))
		}
		pipeline.Write(data)
	}

	output, err := b.render(path.Join("templates/pipeline", outputTemplateName), params)
	if err != nil {
		return err
	}
	pipeline.Write(output)

	if err := b.stage(params.PipelineName, pipeline.Bytes()); err != nil {
		return err
	}
	return addEntry(tw, params.PipelineName, pipeline.Bytes())
}

// addAuxiliary copies every file verbatim under dir, preserving the base
// name. The directory is materialized with a placeholder entry even when the
// file list is empty so it exists inside the running container.
func (b *Builder) addAuxiliary(tw *tar.Writer, dir string, files []string) error {
	if err := addEntry(tw, path.Join(dir, placeholderName), nil); err != nil {
		return err
	}
	for _, file := range files {
		base := filepath.Base(file)
		if base == "." || base == string(filepath.Separator) {
			return types.NewConfigurationError("adding auxiliary file",
				errors.Errorf("path %q has no usable base name", file))
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return types.NewIOError(file, errors.Wrap(err, "reading auxiliary file"))
		}
		if err := addEntry(tw, path.Join(dir, base), data); err != nil {
			return err
		}
	}
	return nil
}

// render executes one embedded template against the parameter context in
// strict mode.
func (b *Builder) render(templatePath string, params Params) ([]byte, error) {
	raw, err := templateFS.ReadFile(templatePath)
	if err != nil {
		return nil, types.NewConfigurationError("loading template "+templatePath, err)
	}
	tmpl, err := template.New(path.Base(templatePath)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, types.NewConfigurationError("parsing template "+templatePath, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params.context()); err != nil {
		return nil, types.NewConfigurationError("rendering template "+templatePath, err)
	}
	return buf.Bytes(), nil
}

// stage writes a rendered file to the cache directory. Staging files are not
// cleaned up; the artifact can be reproduced and inspected after the run.
func (b *Builder) stage(name string, data []byte) error {
	staged := filepath.Join(b.cacheDir, name)
	if err := os.WriteFile(staged, data, entryMode); err != nil {
		return types.NewIOError(staged, errors.Wrap(err, "staging file"))
	}
	return nil
}

func addEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     entryMode,
		Size:     int64(len(data)),
		ModTime:  entryTime,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return types.NewIOError(name, errors.Wrap(err, "writing artifact entry header"))
	}
	if _, err := tw.Write(data); err != nil {
		return types.NewIOError(name, errors.Wrap(err, "writing artifact entry"))
	}
	return nil
}

func templateNames(dir string) ([]string, error) {
	entries, err := fs.ReadDir(templateFS, dir)
	if err != nil {
		return nil, types.NewConfigurationError("listing templates", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}
