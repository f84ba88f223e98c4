package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/absfs/jdfs"
)

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.Bytes(uint64(n)), " ", "")
}

func parseFilter(s string) (jdfs.BucketFilter, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return jdfs.AllBuckets, nil
	case "legacy":
		return jdfs.LegacyOnly, nil
	case "advanced":
		return jdfs.AdvancedOnly, nil
	case "compat", "compatibility":
		return jdfs.CompatOnly, nil
	}
	return 0, fmt.Errorf("unknown bucket filter %q", s)
}

func newBucketsCommand(a *app) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "buckets",
		Short: "List logical buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilter(filter)
			if err != nil {
				return err
			}
			buckets, err := a.conn.ListBuckets(cmd.Context(), f)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, b := range buckets {
				fmt.Fprintf(w, "%s\t%s\t%s\n", b.DisplayName, b.Type, b.Path)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "all", "bucket types to list (all, legacy, advanced, compat)")
	return cmd
}

func newMkbucketCommand(a *app) *cobra.Command {
	var withPassword, encryptFilenames bool
	cmd := &cobra.Command{
		Use:   "mkbucket NAME",
		Short: "Create an advanced bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if withPassword || encryptFilenames {
				p, err := readNewPassword("Bucket password")
				if err != nil {
					return err
				}
				password = p
			}
			bucket := a.conn.AdvancedBucket(args[0])
			if err := a.conn.CreateBucket(cmd.Context(), bucket, password, encryptFilenames); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", bucket.Path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withPassword, "password", false, "protect the bucket with a password (prompted)")
	cmd.Flags().BoolVar(&encryptFilenames, "encrypt-filenames", false, "encrypt file and directory names (implies --password)")
	return cmd
}

func newPrepareCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Create the S3 bucket that holds advanced buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.conn.PrepareBucket(cmd.Context())
		},
	}
}

func newLsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls BUCKET [PATH]",
		Short: "List a directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := "/"
			if len(args) == 2 {
				p = args[1]
			}
			listing, err := a.conn.List(cmd.Context(), a.conn.AdvancedBucket(args[0]), p)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, d := range listing.SortedDirectories() {
				fmt.Fprintf(w, "%s/\t-\n", d.Name)
			}
			for _, f := range listing.SortedFiles() {
				fmt.Fprintf(w, "%s\t%s\n", f.Name, humanizeBytes(f.Size))
			}
			return w.Flush()
		},
	}
}

func newGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get BUCKET PATH [DEST]",
		Short: "Download a file; DEST '-' writes to stdout",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket := a.conn.AdvancedBucket(args[0])
			dest := filepath.Base(strings.ReplaceAll(args[1], `\`, "/"))
			if len(args) == 3 {
				dest = args[2]
			}

			if dest == "-" {
				rc, err := a.conn.ReadFile(cmd.Context(), bucket, args[1])
				if err != nil {
					return err
				}
				defer rc.Close()
				_, err = io.Copy(cmd.OutOrStdout(), rc)
				return err
			}

			n, err := a.conn.Download(cmd.Context(), bucket, args[1], localFS{}, dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s -> %s (%s)\n", args[1], dest, humanizeBytes(n))
			return nil
		},
	}
}

func newPutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put BUCKET SRC PATH",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.conn.Upload(cmd.Context(), a.conn.AdvancedBucket(args[0]), args[2], localFS{}, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s -> %s (%s)\n", args[1], args[2], humanizeBytes(n))
			return nil
		},
	}
}

func newRmCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm BUCKET PATH",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.conn.DeleteFile(cmd.Context(), a.conn.AdvancedBucket(args[0]), args[1])
		},
	}
}

func newMkdirCommand(a *app) *cobra.Command {
	var parents bool
	cmd := &cobra.Command{
		Use:   "mkdir BUCKET PATH",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket := a.conn.AdvancedBucket(args[0])
			if parents {
				return a.conn.MkdirAll(cmd.Context(), bucket, args[1])
			}
			_, err := a.conn.Mkdir(cmd.Context(), bucket, args[1])
			return err
		},
	}
	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "create missing parent directories")
	return cmd
}

func newPasswdCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd BUCKET",
		Short: "Change a bucket password; an empty password removes it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readNewPassword("New bucket password")
			if err != nil {
				return err
			}
			return a.conn.ChangeBucketPassword(cmd.Context(), a.conn.AdvancedBucket(args[0]), password)
		},
	}
}

func newAuditCommand(a *app) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "audit BUCKET",
		Short: "Report file pointers without content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket := a.conn.AdvancedBucket(args[0])
			orphans, err := a.conn.FindOrphans(cmd.Context(), bucket)
			if err != nil {
				return err
			}
			for _, item := range orphans {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", item.Name, item.PointerKey)
				if remove {
					if err := a.conn.DeleteItem(cmd.Context(), bucket, item); err != nil {
						return err
					}
				}
			}
			if len(orphans) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no orphaned pointers")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "delete", false, "delete orphaned pointers")
	return cmd
}
