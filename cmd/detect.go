package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/spyglass/internal/observability"
	"github.com/xkilldash9x/spyglass/internal/vision"
	"github.com/xkilldash9x/spyglass/internal/vision/annotate"
)

var (
	detectPrompt    string
	detectCrosshair bool
	detectJSON      bool
)

var detectCmd = &cobra.Command{
	Use:   "detect <screenshot.png>",
	Short: "Detect UI elements in a screenshot and annotate it.",
	Long: `Sends the screenshot to the vision model, prints the detected bounding
boxes and writes an annotated copy next to the input as <name>_annotated.png.`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().StringVar(&detectPrompt, "prompt", "", "narrow the detection (e.g. \"the close button\")")
	detectCmd.Flags().BoolVar(&detectCrosshair, "crosshair", false, "draw crosshairs at box centers instead of outlines")
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "also write the boxes as JSON next to the screenshot")
}

func runDetect(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	path := args[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read screenshot: %w", err)
	}

	detector := vision.New(cfg.Vision, logger)
	var det *vision.Detection
	if cfg.Vision.Calls > 1 {
		det, _, err = detector.DetectConsistent(cmd.Context(), data, detectPrompt, cfg.Vision.Calls)
	} else {
		det, err = detector.DetectElements(cmd.Context(), data, detectPrompt)
	}
	if err != nil {
		return err
	}

	for i, box := range det.Boxes {
		fmt.Fprintf(cmd.OutOrStdout(), "%2d  %-40s %v\n", i+1, box.Label, box.Box2D)
	}
	if len(det.Boxes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no elements detected")
		return nil
	}

	mode := annotate.ModeBox
	if detectCrosshair {
		mode = annotate.ModeCrosshair
	}
	outPath, err := annotate.AnnotateFile(path, det.Boxes, mode)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "annotated: %s\n", outPath)

	if detectJSON {
		jsonPath := strings.TrimSuffix(path, filepath.Ext(path)) + "_boxes.json"
		encoded, err := json.MarshalIndent(det.Boxes, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(jsonPath, encoded, 0o644); err != nil {
			return fmt.Errorf("failed to write boxes json: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "boxes: %s\n", jsonPath)
	}
	return nil
}
