package config

import (
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// parseKDLInto parses a .bidscore.kdl document into cfg, following the
// node-walk shape of the teacher's internal/config/kdl_config.go.
func parseKDLInto(cfg *Config, content string) error {
	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return err
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				if nodeName(cn) == "root" {
					if s, ok := firstStringArg(cn); ok {
						cfg.Project.Root = s
					}
				}
			}
		case "compat":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "disable_nifti_header_check":
					if b, ok := firstBoolArg(cn); ok {
						cfg.DisableNiftiHeaderCheck = b
					}
				case "disable_metadata_check":
					if b, ok := firstBoolArg(cn); ok {
						cfg.DisableMetadataCheck = b
					}
				}
			}
		case "bids_version":
			if s, ok := firstStringArg(n); ok {
				cfg.BIDSVersion = s
			}
		case "writer_extension":
			if s, ok := firstStringArg(n); ok {
				cfg.WriterExtension = s
			}
		case "logging":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "level":
					if s, ok := firstStringArg(cn); ok {
						cfg.Logging.Level = s
					}
				case "json":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Logging.JSON = b
					}
				}
			}
		case "dataset":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "name":
					if s, ok := firstStringArg(cn); ok {
						cfg.Dataset.Name = s
					}
				case "authors":
					cfg.Dataset.Authors = collectStringArgs(cn)
				}
			}
		}
	}

	return nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
