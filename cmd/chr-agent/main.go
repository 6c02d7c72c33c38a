package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/childhealth/fieldsync/internal/domain/child"
	"github.com/childhealth/fieldsync/internal/platform/syncengine"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "chr-agent",
		Short:        "Offline child health record collection for field devices",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		initCmd(),
		loginCmd(),
		loginAgentCmd(),
		logoutCmd(),
		whoamiCmd(),
		collectCmd(),
		recordsCmd(),
		lookupCmd(),
		statsCmd(),
		syncCmd(),
		runCmd(),
		bookletCmd(),
		infoCmd(),
		clearCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp opens the agent for the length of one command.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or upgrade the local database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				info, err := a.store.Info(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Local database ready at %s (schema version %d)\n", info.Path, info.Version)
				return nil
			})
		},
	}
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a national id and OTP, or as administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			nid, _ := cmd.Flags().GetString("nid")
			otp, _ := cmd.Flags().GetString("otp")
			admin, _ := cmd.Flags().GetBool("admin")
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")

			return withApp(cmd, func(ctx context.Context, a *app) error {
				if admin {
					who, err := a.identity.AuthenticateAdmin(ctx, username, password)
					if err != nil {
						return err
					}
					fmt.Printf("Signed in as %s (%s)\n", who.Name, who.ID)
					return nil
				}

				if nid == "" {
					return errors.New("--nid is required")
				}
				if otp == "" {
					if err := a.identity.SendOTP(ctx, nid); err != nil {
						return err
					}
					fmt.Print("OTP sent. Enter OTP: ")
					line, err := bufio.NewReader(os.Stdin).ReadString('\n')
					if err != nil && line == "" {
						return fmt.Errorf("read OTP: %w", err)
					}
					otp = strings.TrimSpace(line)
				}

				who, err := a.identity.Authenticate(ctx, nid, otp)
				if err != nil {
					return err
				}
				fmt.Printf("Signed in as %s (%s, %s)\n", who.Name, who.ID, who.Region)
				return nil
			})
		},
	}
	cmd.Flags().String("nid", "", "National id of the field representative")
	cmd.Flags().String("otp", "", "One-time code; prompted for when omitted")
	cmd.Flags().Bool("admin", false, "Sign in as administrator")
	cmd.Flags().String("username", "", "Administrator username")
	cmd.Flags().String("password", "", "Administrator password")
	return cmd
}

func loginAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login-agent",
		Short: "Start an offline field agent session (collect only, no upload)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				who, err := a.identity.LoginAsFieldAgent(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Offline session started as %s. Sign in with `login` before syncing.\n", who.Name)
				return nil
			})
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.identity.Logout(ctx); err != nil {
					return err
				}
				fmt.Println("Signed out.")
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				session := a.identity.Session()
				who, ok := session.CurrentIdentity()
				if !ok {
					fmt.Println("Not signed in.")
					return nil
				}
				return printJSON(map[string]interface{}{
					"identity":     who,
					"userType":     session.UserType(),
					"canSync":      !a.identity.RequireAuthForSync(),
					"isAdmin":      session.IsAdmin(),
					"serverURL":    a.cfg.ServerURL,
					"databasePath": a.cfg.LocalDBPath,
				})
			})
		},
	}
}

func collectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Record a child's measurements",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			in := child.CollectInput{}
			in.ChildName, _ = f.GetString("name")
			in.Age, _ = f.GetFloat64("age")
			in.WeightKg, _ = f.GetFloat64("weight")
			in.HeightCm, _ = f.GetFloat64("height")
			in.GuardianName, _ = f.GetString("guardian")
			in.VisibleSigns, _ = f.GetString("signs")
			in.RecentIllnesses, _ = f.GetString("illnesses")
			in.ParentalConsent, _ = f.GetBool("consent")
			lang, _ := f.GetString("lang")
			in.Language = child.Language(lang)

			if photo, _ := f.GetString("photo"); photo != "" {
				uri, err := photoDataURI(photo)
				if err != nil {
					return err
				}
				in.FacePhoto = uri
			}
			if f.Changed("lat") && f.Changed("lon") {
				lat, _ := f.GetFloat64("lat")
				lon, _ := f.GetFloat64("lon")
				addr, _ := f.GetString("address")
				in.Location = &child.Location{Latitude: lat, Longitude: lon, Address: addr}
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				rec, err := a.records.Collect(ctx, in)
				if err != nil {
					var verr *child.ValidationError
					if errors.As(err, &verr) {
						for field, msg := range verr.Fields {
							fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
						}
					}
					return err
				}
				bmi, status := rec.Assessment()
				fmt.Printf("Saved %s\n", rec.HealthID)
				fmt.Printf("BMI %.1f: %s\n", child.RoundBMI(bmi), status)
				fmt.Println("The record will upload on the next sync.")
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.String("name", "", "Child's name")
	f.String("photo", "", "Path to a JPEG or PNG face photo")
	f.Float64("age", 0, "Age in years")
	f.Float64("weight", 0, "Weight in kg")
	f.Float64("height", 0, "Height in cm")
	f.String("guardian", "", "Parent or guardian name")
	f.String("signs", "", "Visible signs of malnutrition")
	f.String("illnesses", "", "Recent illnesses")
	f.Bool("consent", false, "Parental consent was given")
	f.Float64("lat", 0, "Latitude")
	f.Float64("lon", 0, "Longitude")
	f.String("address", "", "Address or place name")
	f.String("lang", string(child.LangEnglish), "Interface language: en, hi, te or kn")
	return cmd
}

// photoDataURI reads an image file into a data: URI, the form face photos
// travel in.
func photoDataURI(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	mime := http.DetectContentType(raw)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", filepath.Base(path), mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}

func recordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List records collected on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			search, _ := cmd.Flags().GetString("search")
			status, _ := cmd.Flags().GetString("status")
			all, _ := cmd.Flags().GetBool("all")
			asJSON, _ := cmd.Flags().GetBool("json")

			filter := child.ListFilter{Search: search, Status: child.UploadFilter(status)}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				list := a.records.ListMine
				if all {
					if !a.identity.Session().IsAdmin() {
						return errors.New("--all requires an administrator session")
					}
					list = a.records.ListAll
				}
				records, err := list(ctx, filter)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(records)
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "HEALTH ID\tCHILD\tAGE\tBMI\tSTATUS\tUPLOADED\tCREATED")
				for _, r := range records {
					bmi, st := r.Assessment()
					fmt.Fprintf(w, "%s\t%s\t%g\t%.1f\t%s\t%t\t%s\n",
						r.HealthID, r.ChildName, r.Age, child.RoundBMI(bmi), st, r.IsUploaded,
						r.CreatedAt.Local().Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().String("search", "", "Match child name, health id or guardian name")
	cmd.Flags().String("status", string(child.FilterAll), "all, uploaded or pending")
	cmd.Flags().Bool("all", false, "List every representative's records (administrator only)")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <health-id>",
		Short: "Show one record by health id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				rec, err := a.records.Lookup(ctx, args[0])
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("no record with health id %s", args[0])
				}
				bmi, st := rec.Assessment()
				return printJSON(map[string]interface{}{
					"record":          rec,
					"bmi":             child.RoundBMI(bmi),
					"nutritionStatus": st.String(),
				})
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize records on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				st, err := a.records.Stats(ctx)
				if err != nil {
					return err
				}
				return printJSON(st)
			})
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload pending records now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.identity.RequireAuthForSync() {
					return fmt.Errorf("%w: sign in with `chr-agent login` first", syncengine.ErrAuthenticationMissing)
				}
				if err := a.transport.Ping(ctx); err != nil {
					return fmt.Errorf("server unreachable, records stay pending: %w", err)
				}
				a.engine.SetOnline(ctx, true)

				res, err := a.engine.SyncPending(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Uploaded %d of %d pending record(s), %d failed.\n", res.Uploaded, res.TotalPending, res.Failed)

				if a.engine.RetryQueueCount() > 0 {
					retry, err := a.engine.RetryFailedUploads(ctx)
					if err != nil && !errors.Is(err, syncengine.ErrSkipped) {
						return err
					}
					fmt.Printf("Retry: uploaded %d, still failing %d.\n", retry.Uploaded, retry.Failed)
				}
				return nil
			})
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the background sync agent with its local event socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return runAgent(ctx, a)
		},
	}
}

func bookletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "booklet <health-id>",
		Short: "Download the health booklet for a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			return withApp(cmd, func(ctx context.Context, a *app) error {
				reqCtx, cancel := context.WithTimeout(ctx, a.cfg.HTTPTimeout)
				defer cancel()
				body, err := a.engine.FetchBooklet(reqCtx, strings.ToUpper(strings.TrimSpace(args[0])))
				if err != nil {
					return err
				}
				if out == "" {
					_, err = os.Stdout.Write(append(body, '\n'))
					return err
				}
				if err := os.WriteFile(out, body, 0o600); err != nil {
					return fmt.Errorf("write booklet: %w", err)
				}
				fmt.Printf("Booklet saved to %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().String("out", "", "Write the booklet to this file")
	return cmd
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show local database details",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				info, err := a.store.Info(ctx)
				if err != nil {
					return err
				}
				pending, err := a.engine.PendingCount(ctx)
				if err != nil {
					return err
				}
				return printJSON(map[string]interface{}{
					"database": info,
					"pending":  pending,
					"checked":  time.Now().UTC(),
				})
			})
		},
	}
}

func clearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all local records and identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			destroy, _ := cmd.Flags().GetBool("destroy")
			if !yes {
				return errors.New("refusing to delete local data without --yes")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				pending, err := a.engine.PendingCount(ctx)
				if err != nil {
					return err
				}
				if pending > 0 {
					fmt.Fprintf(os.Stderr, "warning: %d record(s) were never uploaded\n", pending)
				}
				if destroy {
					if err := a.store.Destroy(); err != nil {
						return err
					}
					fmt.Println("Local database deleted.")
					return nil
				}
				if err := a.store.ClearAll(ctx); err != nil {
					return err
				}
				fmt.Println("Local records cleared.")
				return nil
			})
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm deletion")
	cmd.Flags().Bool("destroy", false, "Delete the database file itself, including the session")
	return cmd
}
