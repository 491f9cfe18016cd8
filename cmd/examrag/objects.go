package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"examrag/internal/crypto"
	"examrag/internal/logger"
	"examrag/internal/objstore"

	"github.com/spf13/cobra"
)

var (
	objectTTL  time.Duration
	objectAddr string
)

var objectsCmd = &cobra.Command{
	Use:   "objects",
	Short: "Stored page images",
}

var objectURLCmd = &cobra.Command{
	Use:   "url <key>",
	Short: "Print a signed, expiring URL path for a stored image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		objects, err := openObjects()
		if err != nil {
			return err
		}
		u, err := objects.SignedURL(args[0], objectTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u)
		return nil
	},
}

var objectServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored images behind signed URLs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		objects, err := openObjects()
		if err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle(objstore.URLPrefix, objectHandler(objects))
		logger.Info("Serving objects", "addr", objectAddr, "dir", cfg.ObjectDir)
		return http.ListenAndServe(objectAddr, mux)
	},
}

func openObjects() (*objstore.Local, error) {
	return objstore.NewLocal(cfg.ObjectDir, crypto.NewSigner(cfg.SigningKey))
}

// objectHandler serves an object only for a valid, unexpired signed URL.
func objectHandler(objects *objstore.Local) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		key, err := objects.Resolve(r.URL.RequestURI())
		switch {
		case errors.Is(err, crypto.ErrExpired):
			http.Error(w, "Link expired", http.StatusGone)
			return
		case err != nil:
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		data, err := objects.Get(key)
		switch {
		case errors.Is(err, objstore.ErrNotFound):
			http.Error(w, "Not found", http.StatusNotFound)
			return
		case err != nil:
			logger.Error("Failed to read object", "key", key, "err", err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.Write(data)
	})
}

func init() {
	objectURLCmd.Flags().DurationVar(&objectTTL, "ttl", time.Hour, "URL lifetime")
	objectServeCmd.Flags().StringVar(&objectAddr, "addr", ":8080", "listen address")
	objectsCmd.AddCommand(objectURLCmd, objectServeCmd)
	rootCmd.AddCommand(objectsCmd)
}
