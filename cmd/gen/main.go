// gen is the batch CLI for jewelry marketing-asset generation: it scans a
// filesystem inbox, fans jobs out over a bounded worker pool, and records
// run summaries. Subcommands: run, dry-run, regen, export, init.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"k8s.io/klog/v2"

	"jewelgen/pkg/jewelgen"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var code int
	switch os.Args[1] {
	case "run":
		code = cmdRun(os.Args[2:])
	case "dry-run":
		code = cmdDryRun(os.Args[2:])
	case "regen":
		code = cmdRegen(os.Args[2:])
	case "export":
		code = cmdExport(os.Args[2:])
	case "init":
		code = cmdInit(os.Args[2:])
	default:
		usage()
		code = 1
	}

	klog.Flush()
	os.Exit(code)
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: gen <command> [flags]

commands:
  run      run batch generation over the inbox
  dry-run  show what a run would process
  regen    regenerate a single artifact for a job
  export   copy a job's latest artifacts to a directory
  init     create the workspace folder skeleton
`)
}

// resolveDir makes p absolute relative to root unless it already is.
func resolveDir(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	klog.InitFlags(fs)
	root := fs.String("root", ".", "workspace directory")
	in := fs.String("in", "inbox", "input directory (relative to --root)")
	workers := fs.Int("workers", jewelgen.DefaultWorkers, "number of concurrent files")
	timeout := fs.Duration("timeout", jewelgen.DefaultTimeout, "per-file timeout")
	jtype := fs.String("type", "ring", "default jewelry type for flat inboxes")
	archive := fs.Bool("archive", false, "move fully-done inputs to archive/success")
	watchFlag := fs.Bool("watch", false, "keep watching the inbox and re-run on changes")
	fs.Parse(args)

	cfg := jewelgen.LoadConfig(*root)
	if err := cfg.RequireAPIKey(); err != nil {
		klog.Errorf("%v", err)
		return 1
	}

	inbox := resolveDir(*root, *in)

	code := runOnce(cfg, inbox, *workers, *timeout, *jtype, *archive)

	if *watchFlag {
		klog.Infof("watch mode: waiting for inbox changes in %s", inbox)
		err := jewelgen.Watch(context.Background(), inbox, func() {
			runOnce(cfg, inbox, *workers, *timeout, *jtype, *archive)
		})
		if err != nil && err != context.Canceled {
			klog.Errorf("watch failed: %v", err)
			return 1
		}
	}

	return code
}

// runOnce performs a single batch pass and returns the process exit code.
func runOnce(cfg *jewelgen.Config, inbox string, workers int, timeout time.Duration, defaultType string, archive bool) int {
	runID := jewelgen.NewRunID(time.Now())

	restore, err := teeLogs(cfg.LogsDir(), runID)
	if err != nil {
		klog.Warningf("per-run log unavailable: %v", err)
	} else {
		defer restore()
	}

	klog.Infof("starting batch run: %s", runID)
	klog.Infof("input directory: %s", inbox)
	klog.Infof("workers: %d", workers)

	byType, err := jewelgen.ScanInbox(inbox)
	if err != nil {
		klog.Errorf("scan failed: %v", err)
		return 1
	}

	var files []jewelgen.InboxFile
	mode := "folder_based"
	types := []string{}
	if len(byType) > 0 {
		files = jewelgen.Flatten(byType)
		for t := range byType {
			types = append(types, t)
		}
		sort.Strings(types)
	} else {
		mode = "single_type"
		klog.Infof("no type folders detected, processing as %q", defaultType)
		files, err = jewelgen.ScanFlat(inbox, defaultType)
		if err != nil {
			klog.Errorf("scan failed: %v", err)
			return 1
		}
		types = []string{defaultType}
	}

	if len(files) == 0 {
		klog.Warningf("no image files found in %s", inbox)
		return 0
	}

	pipeline := jewelgen.NewPipeline(cfg)
	batch := &jewelgen.Batch{
		Workers: workers,
		Timeout: timeout,
		Process: func(ctx context.Context, f jewelgen.InboxFile) (*jewelgen.JobResult, error) {
			return pipeline.GenerateAll(ctx, f.Path, f.Type)
		},
	}

	results, stats := batch.Run(context.Background(), files)

	if archive {
		for _, r := range results {
			if r.Job != nil && r.Job.Status == jewelgen.StatusDone {
				if err := jewelgen.ArchiveSuccess(cfg, runID, r.File); err != nil {
					klog.Warningf("%v", err)
				}
			}
		}
	}

	summary := jewelgen.NewRunSummary(runID, inbox, mode, types, results, stats)
	summaryPath, err := summary.Save(cfg.RunsDir())
	if err != nil {
		klog.Errorf("save summary: %v", err)
		return 1
	}

	klog.Infof("batch run complete: mode=%s total=%d success=%d partial=%d failed=%d duration=%s",
		mode, summary.TotalFiles, summary.Success, summary.Partial, summary.Failed, summary.Duration)
	klog.Infof("summary: %s", summaryPath)

	if summary.Failed > 0 {
		return 1
	}
	return 0
}

// teeLogs mirrors klog output into logs/<run_id>.log, returning a restore
// function that closes the file.
func teeLogs(logsDir, runID string) (func(), error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(filepath.Join(logsDir, runID+".log"))
	if err != nil {
		return nil, err
	}

	klog.LogToStderr(false)
	klog.SetOutput(io.MultiWriter(os.Stderr, f))

	return func() {
		klog.Flush()
		klog.LogToStderr(true)
		f.Close()
	}, nil
}

func cmdDryRun(args []string) int {
	fs := flag.NewFlagSet("dry-run", flag.ExitOnError)
	klog.InitFlags(fs)
	root := fs.String("root", ".", "workspace directory")
	in := fs.String("in", "inbox", "input directory (relative to --root)")
	jtype := fs.String("type", "ring", "default jewelry type for flat inboxes")
	fs.Parse(args)

	inbox := resolveDir(*root, *in)

	byType, err := jewelgen.ScanInbox(inbox)
	if err != nil {
		klog.Errorf("scan failed: %v", err)
		return 1
	}

	if len(byType) == 0 {
		files, err := jewelgen.ScanFlat(inbox, *jtype)
		if err != nil {
			klog.Errorf("scan failed: %v", err)
			return 1
		}
		if len(files) == 0 {
			fmt.Printf("no image files found in %s\n", inbox)
			return 0
		}
		byType = map[string][]jewelgen.InboxFile{*jtype: files}
		fmt.Printf("no folder structure detected - will process as single type %q\n\n", *jtype)
	}

	total := 0
	for _, t := range sortedKeys(byType) {
		files := byType[t]
		total += len(files)
		fmt.Printf("%s (%d files):\n", t, len(files))
		for i, f := range files {
			size := int64(0)
			if fi, err := os.Stat(f.Path); err == nil {
				size = fi.Size()
			}
			fmt.Printf("  %2d. %-40s (%.2f MB)\n", i+1, filepath.Base(f.Path), float64(size)/1024/1024)
		}
		fmt.Println()
	}
	fmt.Printf("total files: %d across %d jewelry types\n", total, len(byType))
	return 0
}

func sortedKeys(m map[string][]jewelgen.InboxFile) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cmdRegen(args []string) int {
	fs := flag.NewFlagSet("regen", flag.ExitOnError)
	klog.InitFlags(fs)
	root := fs.String("root", ".", "workspace directory")
	job := fs.String("job", "", "job ID")
	artifact := fs.String("artifact", "", "artifact type (desc|styled|styled2|styled3|wear|closeup)")
	timeout := fs.Duration("timeout", jewelgen.DefaultTimeout, "timeout for the regeneration")
	fs.Parse(args)

	if *job == "" || *artifact == "" {
		klog.Errorf("--job and --artifact are required flags")
		return 1
	}

	cfg := jewelgen.LoadConfig(*root)
	if err := cfg.RequireAPIKey(); err != nil {
		klog.Errorf("%v", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	klog.Infof("regenerating %s for job %s", *artifact, *job)
	meta, err := jewelgen.NewPipeline(cfg).Regenerate(ctx, *job, *artifact)
	if err != nil {
		klog.Errorf("regeneration failed: %v", err)
		return 1
	}

	klog.Infof("regeneration successful: %s %s now at v%d (job status: %s)",
		*job, *artifact, meta.Artifacts[*artifact].Latest, meta.Status)
	return 0
}

func cmdExport(args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	klog.InitFlags(fs)
	root := fs.String("root", ".", "workspace directory")
	job := fs.String("job", "", "job ID")
	to := fs.String("to", "", "export destination directory")
	fs.Parse(args)

	if *job == "" || *to == "" {
		klog.Errorf("--job and --to are required flags")
		return 1
	}

	cfg := jewelgen.LoadConfig(*root)
	manifest, err := jewelgen.Export(cfg, *job, *to)
	if err != nil {
		klog.Errorf("export failed: %v", err)
		return 1
	}

	klog.Infof("export complete: %d artifacts -> %s", len(manifest.Artifacts), *to)
	return 0
}

func cmdInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	klog.InitFlags(fs)
	fs.Parse(args)

	base := "."
	if fs.NArg() > 0 {
		base = fs.Arg(0)
	}

	created, err := jewelgen.EnsureWorkspace(base)
	if err != nil {
		klog.Errorf("init failed: %v", err)
		return 1
	}

	if len(created) == 0 {
		fmt.Printf("workspace already initialized: %s\n", base)
		return 0
	}
	fmt.Printf("created %d folders under %s:\n", len(created), base)
	for _, d := range created {
		fmt.Printf("  %s\n", d)
	}
	return 0
}
