package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/orchestrator/config"
	"github.com/relaycore/orchestrator/llm"
)

// FileToolsConfig carries the path-sandbox and size limits spec.md §4.11
// requires every file-touching tool to enforce.
type FileToolsConfig struct {
	// ProjectRoot anchors every relative path argument.
	ProjectRoot string
	// ReadWhitelist is the set of project-root-relative prefixes reads may
	// resolve under (default ".bmad/", "docs/", "config/").
	ReadWhitelist []string
	// WriteWhitelist is the stricter set writes may target (default
	// "docs/", ".bmad/tmp/").
	WriteWhitelist []string
	// MaxFileSizeBytes refuses reads of files larger than this ceiling.
	MaxFileSizeBytes int64
	// AgentDefinitionsDir is never writable, regardless of WriteWhitelist —
	// the running agent set must not be mutated by a tool call.
	AgentDefinitionsDir string
}

// NewFileToolsConfig adapts config.ToolsConfig into the shape the file
// tools consume, pinning agentDefinitionsDir as permanently unwritable
// regardless of WriteWhitelist.
func NewFileToolsConfig(cfg config.ToolsConfig, agentDefinitionsDir string) FileToolsConfig {
	return FileToolsConfig{
		ProjectRoot:         cfg.ProjectRoot,
		ReadWhitelist:       cfg.ReadWhitelist,
		WriteWhitelist:      cfg.WriteWhitelist,
		MaxFileSizeBytes:    cfg.MaxFileSizeBytes,
		AgentDefinitionsDir: agentDefinitionsDir,
	}
}

// resolve validates rawPath against the project root and a whitelist,
// returning its absolute filesystem form. It rejects any ".." path segment,
// any absolute path that escapes ProjectRoot, and any path whose
// root-relative form does not start with one of whitelist's prefixes.
func (c FileToolsConfig) resolve(rawPath string, whitelist []string) (string, error) {
	for _, seg := range strings.Split(filepath.ToSlash(rawPath), "/") {
		if seg == ".." {
			return "", fmt.Errorf("bad_arguments: path %q contains a \"..\" segment", rawPath)
		}
	}

	var abs string
	if filepath.IsAbs(rawPath) {
		abs = filepath.Clean(rawPath)
	} else {
		abs = filepath.Clean(filepath.Join(c.ProjectRoot, rawPath))
	}

	root := filepath.Clean(c.ProjectRoot)
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("bad_arguments: path %q resolves outside the project root", rawPath)
	}

	relSlash := filepath.ToSlash(rel)
	allowed := false
	for _, prefix := range whitelist {
		p := strings.TrimSuffix(prefix, "/")
		if relSlash == p || strings.HasPrefix(relSlash, p+"/") {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", fmt.Errorf("bad_arguments: path %q is not under an allowed prefix", rawPath)
	}

	return abs, nil
}

func (c FileToolsConfig) resolveRead(rawPath string) (string, error) {
	return c.resolve(rawPath, c.ReadWhitelist)
}

func (c FileToolsConfig) resolveWrite(rawPath string) (string, error) {
	abs, err := c.resolve(rawPath, c.WriteWhitelist)
	if err != nil {
		return "", err
	}
	if c.AgentDefinitionsDir != "" {
		defsRoot := filepath.Clean(filepath.Join(c.ProjectRoot, c.AgentDefinitionsDir))
		if abs == defsRoot || strings.HasPrefix(abs, defsRoot+string(filepath.Separator)) {
			return "", fmt.Errorf("bad_arguments: path %q targets the agent definitions directory", rawPath)
		}
	}
	return abs, nil
}

// --- load_file ---

type loadFileArgs struct {
	Path string `json:"path"`
}

type loadFileResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Bytes   int    `json:"bytes"`
}

// NewLoadFileTool builds the load_file(path) tool from spec.md §4.11.
func NewLoadFileTool(cfg FileToolsConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params loadFileArgs
		if err := json.Unmarshal(args, &params); err != nil || params.Path == "" {
			return nil, fmt.Errorf("bad_arguments: path is required")
		}

		abs, err := cfg.resolveRead(params.Path)
		if err != nil {
			return nil, err
		}

		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("load_file: %w", err)
		}
		if cfg.MaxFileSizeBytes > 0 && info.Size() > cfg.MaxFileSizeBytes {
			return nil, fmt.Errorf("bad_arguments: %s exceeds the %d byte read ceiling", params.Path, cfg.MaxFileSizeBytes)
		}

		content, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("load_file: %w", err)
		}

		logger.Debug("load_file", zap.String("path", params.Path), zap.Int("bytes", len(content)))
		return json.Marshal(loadFileResponse{Path: params.Path, Content: string(content), Bytes: len(content)})
	}

	return fn, ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        "load_file",
			Description: "Read a text file's contents from within the project's allowed read paths.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "Project-relative path to read"}
				},
				"required": ["path"]
			}`),
		},
		Timeout: 10 * time.Second,
	}
}

// RegisterLoadFileTool registers load_file against registry.
func RegisterLoadFileTool(registry ToolRegistry, cfg FileToolsConfig, logger *zap.Logger) error {
	fn, metadata := NewLoadFileTool(cfg, logger)
	return registry.Register("load_file", fn, metadata)
}

// --- save_file ---

type saveFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type saveFileResponse struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// NewSaveFileTool builds the save_file(path, content) tool from spec.md
// §4.11.
func NewSaveFileTool(cfg FileToolsConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params saveFileArgs
		if err := json.Unmarshal(args, &params); err != nil || params.Path == "" {
			return nil, fmt.Errorf("bad_arguments: path is required")
		}

		abs, err := cfg.resolveWrite(params.Path)
		if err != nil {
			return nil, err
		}

		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("save_file: %w", err)
		}
		if err := os.WriteFile(abs, []byte(params.Content), 0o644); err != nil {
			return nil, fmt.Errorf("save_file: %w", err)
		}

		logger.Info("save_file", zap.String("path", params.Path), zap.Int("bytes", len(params.Content)))
		return json.Marshal(saveFileResponse{Path: params.Path, Bytes: len(params.Content)})
	}

	return fn, ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        "save_file",
			Description: "Write a text file within the project's allowed write paths, creating parent directories as needed.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "Project-relative path to write"},
					"content": {"type": "string", "description": "File content to write"}
				},
				"required": ["path", "content"]
			}`),
		},
		Timeout: 10 * time.Second,
	}
}

// RegisterSaveFileTool registers save_file against registry.
func RegisterSaveFileTool(registry ToolRegistry, cfg FileToolsConfig, logger *zap.Logger) error {
	fn, metadata := NewSaveFileTool(cfg, logger)
	return registry.Register("save_file", fn, metadata)
}

// --- list_directory ---

type listDirectoryArgs struct {
	Path string `json:"path"`
}

type directoryEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

type listDirectoryResponse struct {
	Path    string           `json:"path"`
	Entries []directoryEntry `json:"entries"`
}

// NewListDirectoryTool builds the list_directory(path) tool from spec.md
// §4.11.
func NewListDirectoryTool(cfg FileToolsConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params listDirectoryArgs
		if err := json.Unmarshal(args, &params); err != nil || params.Path == "" {
			return nil, fmt.Errorf("bad_arguments: path is required")
		}

		abs, err := cfg.resolveRead(params.Path)
		if err != nil {
			return nil, err
		}

		entries, err := os.ReadDir(abs)
		if err != nil {
			return nil, fmt.Errorf("list_directory: %w", err)
		}

		out := make([]directoryEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, directoryEntry{Name: e.Name(), IsDir: e.IsDir()})
		}

		logger.Debug("list_directory", zap.String("path", params.Path), zap.Int("entries", len(out)))
		return json.Marshal(listDirectoryResponse{Path: params.Path, Entries: out})
	}

	return fn, ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        "list_directory",
			Description: "List the entries of a directory within the project's allowed read paths.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "Project-relative directory to list"}
				},
				"required": ["path"]
			}`),
		},
		Timeout: 10 * time.Second,
	}
}

// RegisterListDirectoryTool registers list_directory against registry.
func RegisterListDirectoryTool(registry ToolRegistry, cfg FileToolsConfig, logger *zap.Logger) error {
	fn, metadata := NewListDirectoryTool(cfg, logger)
	return registry.Register("list_directory", fn, metadata)
}

// --- update_workflow_status ---

type updateWorkflowStatusArgs struct {
	Workflow string `json:"workflow"`
	File     string `json:"file"`
}

type updateWorkflowStatusResponse struct {
	Workflow string `json:"workflow"`
	File     string `json:"file"`
	Updated  string `json:"updated_at"`
}

// NewUpdateWorkflowStatusTool builds update_workflow_status(workflow, file):
// it appends a status marker line to file recording that workflow reached
// its next step, the mechanism a persona's menu-driven workflow (spec.md §3
// MenuItem.Workflow) uses to record progress between turns.
func NewUpdateWorkflowStatusTool(cfg FileToolsConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params updateWorkflowStatusArgs
		if err := json.Unmarshal(args, &params); err != nil || params.Workflow == "" || params.File == "" {
			return nil, fmt.Errorf("bad_arguments: workflow and file are required")
		}

		abs, err := cfg.resolveWrite(params.File)
		if err != nil {
			return nil, err
		}

		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("update_workflow_status: %w", err)
		}

		now := time.Now().UTC().Format(time.RFC3339)
		line := fmt.Sprintf("\n## Workflow Status: %s — updated %s\n", params.Workflow, now)

		f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("update_workflow_status: %w", err)
		}
		defer f.Close()
		if _, err := f.WriteString(line); err != nil {
			return nil, fmt.Errorf("update_workflow_status: %w", err)
		}

		logger.Info("update_workflow_status", zap.String("workflow", params.Workflow), zap.String("file", params.File))
		return json.Marshal(updateWorkflowStatusResponse{Workflow: params.Workflow, File: params.File, Updated: now})
	}

	return fn, ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        "update_workflow_status",
			Description: "Record that a named workflow reached its next step by appending a status marker to a tracked file.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"workflow": {"type": "string", "description": "Workflow identifier being updated"},
					"file": {"type": "string", "description": "Project-relative file the status marker is appended to"}
				},
				"required": ["workflow", "file"]
			}`),
		},
		Timeout: 10 * time.Second,
	}
}

// RegisterUpdateWorkflowStatusTool registers update_workflow_status against
// registry.
func RegisterUpdateWorkflowStatusTool(registry ToolRegistry, cfg FileToolsConfig, logger *zap.Logger) error {
	fn, metadata := NewUpdateWorkflowStatusTool(cfg, logger)
	return registry.Register("update_workflow_status", fn, metadata)
}

// RegisterFixedToolSet registers the five tools spec.md §4.11 names
// (load_file, save_file, list_directory, web_search, update_workflow_status)
// against registry. web_search is only registered if searchCfg.Provider is
// non-nil — a nil search backend means the deployment has none configured,
// not that registration should fail.
func RegisterFixedToolSet(registry ToolRegistry, fileCfg FileToolsConfig, searchCfg WebSearchToolConfig, logger *zap.Logger) error {
	if err := RegisterLoadFileTool(registry, fileCfg, logger); err != nil {
		return err
	}
	if err := RegisterSaveFileTool(registry, fileCfg, logger); err != nil {
		return err
	}
	if err := RegisterListDirectoryTool(registry, fileCfg, logger); err != nil {
		return err
	}
	if err := RegisterUpdateWorkflowStatusTool(registry, fileCfg, logger); err != nil {
		return err
	}
	if searchCfg.Provider != nil {
		if err := RegisterWebSearchTool(registry, searchCfg, logger); err != nil {
			return err
		}
	}
	return nil
}
