package builtin

import (
	"github.com/shannon-run/llm-gateway/internal/tools"
	"github.com/shannon-run/llm-gateway/internal/tools/firecrawl"
	"github.com/shannon-run/llm-gateway/internal/tools/websearch"
)

// Config selects which built-ins to register and with what backing
// clients (spec §4.7's fixed built-in tool set).
type Config struct {
	Search          *websearch.WebSearchTool
	Extractor       *websearch.ContentExtractor
	Firecrawl       *firecrawl.Client
	Workspace       string
	BashAllowed     []string
	PythonCoreAddr  string
	EnableBash      bool
	EnablePython    bool
}

// Register adds every enabled built-in tool to registry, skipping ones
// whose backing client was not configured.
func Register(registry *tools.Registry, cfg Config) error {
	register := func(t tools.Tool) error { return registry.Register(t, true) }

	if err := register(NewCalculatorTool()); err != nil {
		return err
	}
	if err := register(NewWebFetchTool(cfg.Extractor)); err != nil {
		return err
	}
	if err := register(NewFileReadTool(cfg.Workspace)); err != nil {
		return err
	}
	if err := register(NewFileWriteTool(cfg.Workspace)); err != nil {
		return err
	}
	if err := register(NewFileListTool(cfg.Workspace)); err != nil {
		return err
	}
	if err := register(NewFileEditTool(cfg.Workspace)); err != nil {
		return err
	}
	if err := register(NewFilePatchTool(cfg.Workspace)); err != nil {
		return err
	}
	if cfg.Search != nil {
		if err := register(NewWebSearchTool(cfg.Search)); err != nil {
			return err
		}
	}
	if cfg.Firecrawl != nil {
		if err := register(NewWebSubpageFetchTool(cfg.Firecrawl)); err != nil {
			return err
		}
		if err := register(NewWebCrawlTool(cfg.Firecrawl)); err != nil {
			return err
		}
	}
	if cfg.EnableBash {
		if err := register(NewBashTool(BashOptions{AllowedCommands: cfg.BashAllowed, Workspace: cfg.Workspace})); err != nil {
			return err
		}
	}
	if cfg.EnablePython && cfg.PythonCoreAddr != "" {
		if err := register(NewPythonExecutorTool(cfg.PythonCoreAddr)); err != nil {
			return err
		}
	}
	return nil
}
