package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ent0n29/outreach/internal/config"
	"github.com/ent0n29/outreach/internal/console"
)

func newSubmitCmd(v *viper.Viper) *cobra.Command {
	var (
		workflowID string
		message    string
	)
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Push a workflow file (yaml or json) to the intake channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(v, cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			id, body, err := readWorkflowFile(args[0], workflowID)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			accepted, err := console.NewAPIClient(cfg.APIBaseURL, 0).SubmitWorkflow(ctx, id, body, message)
			if err != nil {
				return err
			}
			log.Info("workflow submitted", zap.String("workflow_id", accepted), zap.String("backend", cfg.APIBaseURL))
			fmt.Fprintln(cmd.OutOrStdout(), accepted)
			return nil
		},
	}
	cmd.Flags().String(config.KeyAPIBaseURL, "http://127.0.0.1:8000", "backend base url")
	cmd.Flags().StringVar(&workflowID, "id", "", "workflow id (default: the file's id field, else a new uuid)")
	cmd.Flags().StringVar(&message, "message", "", "original message to attach")
	return cmd
}

// readWorkflowFile loads a workflow body from YAML or JSON. A top level "id"
// names the workflow unless override is set; it is not part of the body.
func readWorkflowFile(path, override string) (string, json.RawMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read workflow file: %w", err)
	}

	var doc map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		err = dec.Decode(&doc)
	default:
		err = yaml.Unmarshal(raw, &doc)
	}
	if err != nil {
		return "", nil, fmt.Errorf("parse workflow file %s: %w", path, err)
	}
	if len(doc) == 0 {
		return "", nil, fmt.Errorf("workflow file %s is empty", path)
	}

	id := strings.TrimSpace(override)
	if fileID, ok := doc["id"].(string); ok {
		if id == "" {
			id = strings.TrimSpace(fileID)
		}
		delete(doc, "id")
	}
	if id == "" {
		id = "wf-" + uuid.NewString()
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", nil, fmt.Errorf("encode workflow %s: %w", id, err)
	}
	return id, body, nil
}
