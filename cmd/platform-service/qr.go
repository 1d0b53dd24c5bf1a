package main

import (
	"fmt"
	"os"

	"upets/platform-service/internal/config"
	"upets/platform-service/internal/qrimage"
	"upets/platform-service/internal/store"

	"github.com/spf13/cobra"
)

func qrCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "QR tag utilities",
	}
	cmd.AddCommand(qrRenderCmd())
	return cmd
}

func qrRenderCmd() *cobra.Command {
	var (
		size   int
		out    string
		origin string
	)
	cmd := &cobra.Command{
		Use:   "render CODE",
		Short: "Render the PNG printed on a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := args[0]
			if !store.ValidCodeFormat(code) {
				return fmt.Errorf("malformed code %q", code)
			}
			if origin == "" {
				origin = config.Load().PublicOrigin
			}
			png, err := qrimage.New(origin).PNG(code, size)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(png)
				return err
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%dpx)\n", out, qrimage.ClampSize(size))
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", qrimage.DefaultSize, "image size in pixels, clamped to 128..1024")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - or empty for stdout")
	cmd.Flags().StringVar(&origin, "origin", "", "public origin encoded in the tag (defaults to PUBLIC_ORIGIN)")
	return cmd
}
