package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/keyflash/internal/application"
	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

func newSettingsCmd() *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show the saved settings or change the UI language",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mutates := cmd.Flags().Changed("language")
			return withApp(cmd, mutates, func(_ context.Context, cmd *cobra.Command, a *app) error {
				if mutates {
					if err := a.prefs.SetLanguage(language); err != nil {
						return err
					}
				}

				s := a.session.Settings()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "language:     %s\n", s.Language)
				fmt.Fprintf(out, "repositories: %d\n", len(s.Repositories))
				selected := "-"
				if s.SelectedRepositoryURL != nil {
					selected = *s.SelectedRepositoryURL
				}
				fmt.Fprintf(out, "selected:     %s\n", selected)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&language, "language", "", "set the UI language (BCP 47 tag)")
	return cmd
}

func newReposCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repos",
		Short: "Manage firmware repositories",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered repositories",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, false, func(_ context.Context, cmd *cobra.Command, a *app) error {
					printRepositories(cmd.OutOrStdout(), a.selection.Snapshot())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "add <url>",
			Short: "Register a repository and select it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, true, func(_ context.Context, cmd *cobra.Command, a *app) error {
					if err := a.selection.AddRepository(args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", model.RepoDisplayName(args[0]))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "remove <url>",
			Short: "Unregister a repository and drop its firmware catalog",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, true, func(ctx context.Context, cmd *cobra.Command, a *app) error {
					if err := a.selection.RemoveRepository(args[0]); err != nil {
						return err
					}
					if err := a.resolver.Forget(ctx, args[0]); err != nil {
						a.logger.Warn("failed to drop firmware catalog", "repo", args[0], "error", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", model.RepoDisplayName(args[0]))
					return nil
				})
			},
		},
		newRepoSelectCmd(),
	)

	return cmd
}

func newRepoSelectCmd() *cobra.Command {
	var none bool

	cmd := &cobra.Command{
		Use:   "select [url]",
		Short: "Select a registered repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if none == (len(args) == 1) {
				return errors.New("pass either a repository url or --none")
			}
			return withApp(cmd, true, func(_ context.Context, cmd *cobra.Command, a *app) error {
				if none {
					a.selection.SelectRepository(nil)
					fmt.Fprintln(cmd.OutOrStdout(), "selection cleared")
					return nil
				}

				url := args[0]
				registered := slices.ContainsFunc(a.selection.Repositories(), func(r model.Repository) bool {
					return r.URL == url
				})
				if !registered {
					return fmt.Errorf("%w: %q", application.ErrRepositoryNotFound, url)
				}
				a.selection.SelectRepository(&url)
				fmt.Fprintf(cmd.OutOrStdout(), "selected %s\n", model.RepoDisplayName(url))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&none, "none", false, "clear the selection")
	return cmd
}

func newWorkflowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "Browse the workflows of the selected repository",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Fetch and list the workflows of the selected repository",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, false, func(ctx context.Context, cmd *cobra.Command, a *app) error {
					workflows, err := a.selection.LoadWorkflows(ctx)
					if err != nil {
						return quietCancel(err)
					}

					var selectedID *int64
					if repo, ok := a.selection.SelectedRepository(); ok {
						selectedID = repo.WorkflowID
					}
					printWorkflows(cmd.OutOrStdout(), workflows, selectedID)
					return nil
				})
			},
		},
		newWorkflowSelectCmd(),
	)

	return cmd
}

func newWorkflowSelectCmd() *cobra.Command {
	var none bool

	cmd := &cobra.Command{
		Use:   "select [id]",
		Short: "Choose the workflow whose builds supply firmware",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if none == (len(args) == 1) {
				return errors.New("pass either a workflow id or --none")
			}

			var id *int64
			if !none {
				parsed, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid workflow id %q: %w", args[0], err)
				}
				id = &parsed
			}

			return withApp(cmd, true, func(_ context.Context, cmd *cobra.Command, a *app) error {
				if err := a.selection.SetSelectedWorkflowID(id); err != nil {
					return err
				}
				if id == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "workflow selection cleared")
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "selected workflow %d\n", *id)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&none, "none", false, "clear the selection")
	return cmd
}

func newFirmwareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "firmware",
		Short: "Resolve and list firmware candidates",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "latest",
			Short: "Fetch firmware from the latest successful runs of the selected workflow",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, false, func(ctx context.Context, cmd *cobra.Command, a *app) error {
					// Each invocation starts with no workflows loaded, and the
					// saved workflow only counts once it is among them.
					if _, err := a.resolver.LoadWorkflows(ctx); err != nil {
						return quietCancel(err)
					}
					candidates, err := a.resolver.ResolveLatest(ctx)
					if err != nil {
						return quietCancel(err)
					}
					printFirmware(cmd.OutOrStdout(), candidates)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the catalogued firmware of the selected repository",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, false, func(ctx context.Context, cmd *cobra.Command, a *app) error {
					candidates, err := a.resolver.Candidates(ctx)
					if err != nil {
						return err
					}
					printFirmware(cmd.OutOrStdout(), candidates)
					return nil
				})
			},
		},
	)

	return cmd
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List keyboards detected in bootloader mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(ctx context.Context, cmd *cobra.Command, a *app) error {
				devices, err := a.devices.Enumerate(ctx)
				if err != nil {
					return err
				}
				printDevices(cmd.OutOrStdout(), devices)
				return nil
			})
		},
	}
}

// quietCancel turns a cancellation into a clean exit.
func quietCancel(err error) error {
	if errors.Is(err, driven.ErrCancelled) {
		return nil
	}
	return err
}

func printRepositories(w io.Writer, s model.Settings) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tREPOSITORY\tURL\tWORKFLOW")
	for _, repo := range s.Repositories {
		marker := ""
		if s.SelectedRepositoryURL != nil && *s.SelectedRepositoryURL == repo.URL {
			marker = "*"
		}
		workflow := "-"
		if repo.WorkflowID != nil {
			workflow = strconv.FormatInt(*repo.WorkflowID, 10)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", marker, model.RepoDisplayName(repo.URL), repo.URL, workflow)
	}
	_ = tw.Flush()
}

func printWorkflows(w io.Writer, workflows []model.Workflow, selectedID *int64) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tPATH\tSTATE")
	for _, wf := range workflows {
		marker := ""
		if selectedID != nil && *selectedID == wf.ID {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", marker, wf.ID, wf.Name, wf.Path, wf.State)
	}
	_ = tw.Flush()
}

func printFirmware(w io.Writer, candidates []model.Firmware) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tBRANCH\tBUILT\tCOMMIT")
	for _, fw := range candidates {
		subject, _, _ := strings.Cut(fw.CommitMessage, "\n")
		fmt.Fprintf(tw, "%s\t%s\t%d KB\t%s\t%s\t%s\n",
			fw.ID,
			fw.Name,
			fw.SizeKB(),
			fw.Branch,
			fw.BuildDate.Local().Format(time.DateTime),
			subject,
		)
	}
	_ = tw.Flush()
}

func printDevices(w io.Writer, devices []model.Device) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIDE\tVID\tPID\tMOUNT")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID,
			d.Name,
			orDash(string(d.Side)),
			orDash(d.VID),
			orDash(d.PID),
			orDash(d.MountPath),
		)
	}
	_ = tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
