package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"piper-console/pkg/api"
	"piper-console/pkg/csvcheck"
	"piper-console/pkg/dataset"
	"piper-console/pkg/history"
	"piper-console/pkg/session"
)

func newFlags(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

func required(flagName, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: --%s is required", errUsage, flagName)
	}
	return nil
}

func (a *app) record(ctx context.Context, e history.Entry) {
	if a.store == nil {
		return
	}
	if _, err := a.store.Record(ctx, e); err != nil {
		a.warn("history: %v", err)
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdValidateCSV(_ context.Context, a *app, args []string) error {
	fs := newFlags(a, "validate-csv")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: validate-csv <metadata.csv>", errUsage)
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()
	res, err := csvcheck.ValidateReader(f)
	if err != nil {
		return err
	}
	for _, m := range res.Messages {
		fmt.Fprintf(a.out, "%-7s %s\n", m.Type, m.Text)
	}
	if err := res.Err(); err != nil {
		return err
	}
	a.ok("%d entries", res.Entries)
	return nil
}

func cmdInspect(_ context.Context, a *app, args []string) error {
	fs := newFlags(a, "inspect")
	if err := parse(fs, args); err != nil {
		return err
	}
	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}
	r, err := dataset.Inspect(dir)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "dataset\t%s\n", r.Dir)
	fmt.Fprintf(tw, "audio dir\t%s\n", r.AudioDir)
	fmt.Fprintf(tw, "metadata\t%s\n", nz(r.Metadata, "-"))
	fmt.Fprintf(tw, "entries\t%d\n", r.Check.Entries)
	fmt.Fprintf(tw, "clips\t%d\n", len(r.AudioFiles))
	fmt.Fprintf(tw, "size\t%s MB\n", r.SizeMB().StringFixed(2))
	fmt.Fprintf(tw, "blake3\t%s\n", r.Fingerprint)
	tw.Flush()
	if len(r.Missing) > 0 {
		a.warn("%d metadata ids without a clip: %s", len(r.Missing), preview(r.Missing, 5))
	}
	if len(r.Orphans) > 0 {
		a.warn("%d clips without a metadata row: %s", len(r.Orphans), preview(r.Orphans, 5))
	}
	if err := r.Ready(); err != nil {
		return err
	}
	a.ok("dataset ready for training")
	return nil
}

func cmdUpload(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "upload")
	model := fs.String("model", "", "dataset name on the server")
	audioDir := fs.String("audio", "", "directory with .wav/.mp3/.flac clips")
	metadata := fs.String("metadata", "", "metadata.csv to upload")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("model", *model); err != nil {
		return err
	}
	if *audioDir == "" && *metadata == "" {
		return fmt.Errorf("%w: pass --audio, --metadata or both", errUsage)
	}

	req := api.UploadRequest{ModelName: *model, MetadataFile: *metadata}
	var fp string
	if *metadata != "" {
		f, err := os.Open(*metadata)
		if err != nil {
			return fmt.Errorf("open metadata: %w", err)
		}
		res, err := csvcheck.ValidateReader(f)
		f.Close()
		if err != nil {
			return err
		}
		if err := res.Err(); err != nil {
			return err
		}
		if fp, err = dataset.FingerprintFile(*metadata); err != nil {
			return err
		}
		if a.store != nil {
			if prev, err := a.store.FindFingerprint(ctx, fp); err == nil {
				a.warn("same metadata already uploaded to %s on %s", prev.Ref, prev.At.Format(time.DateTime))
			}
		}
	}
	if *audioDir != "" {
		files, err := dataset.AudioFiles(*audioDir)
		if err != nil {
			return err
		}
		req.AudioFiles = files
	}

	a.info("uploading %d audio files for %s", len(req.AudioFiles), *model)
	res, err := a.client.Upload(ctx, req)
	if err != nil {
		return err
	}
	a.record(ctx, history.Entry{
		Kind: history.KindUpload, Ref: *model, State: "uploaded",
		Detail: fmt.Sprintf("%d audio files", len(res.AudioFiles)), Fingerprint: fp,
	})
	a.ok("%s (%s)", res.Message, res.ModelDir)
	return nil
}

func cmdTrain(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "train")
	model := fs.String("model", "", "uploaded dataset to train on")
	language := fs.String("language", "pt-br", "eSpeak voice")
	quality := fs.String("quality", "medium", "low, medium or high")
	sampleRate := fs.Int("sample-rate", 22050, "sample rate in Hz")
	multi := fs.Bool("multi-speaker", false, "train a multi-speaker voice")
	wait := fs.Bool("wait", false, "follow the run until it ends")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("model", *model); err != nil {
		return err
	}
	if !contains(api.Qualities(), *quality) {
		return fmt.Errorf("%w: --quality must be low, medium or high", errUsage)
	}
	ack, err := a.client.StartTraining(ctx, api.TrainingRequest{
		ModelName: *model, Language: *language, Quality: *quality,
		SampleRate: *sampleRate, SingleSpeaker: !*multi,
	})
	if err != nil {
		return err
	}
	a.ok("%s (%d epochs)", nz(ack.Message, "training started"), api.QualityEpochs(*quality))
	if !*wait {
		return nil
	}
	st, err := follow(ctx, a, trainingTracker(a))
	if err != nil {
		return err
	}
	a.ok("model %s trained", st.ModelName)
	return nil
}

func cmdStatus(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "status")
	if err := parse(fs, args); err != nil {
		return err
	}
	kind := session.KindTraining
	if fs.NArg() > 0 {
		kind = session.Kind(fs.Arg(0))
	}
	var (
		st  any
		err error
	)
	switch kind {
	case session.KindTraining:
		st, err = a.client.TrainingStatus(ctx)
	case session.KindExport:
		st, err = a.client.CloudStatus(ctx)
	case session.KindRemote:
		st, err = a.client.RemoteStatus(ctx)
	case session.KindTranscription:
		st, err = a.client.TranscriptionStatus(ctx)
	default:
		return fmt.Errorf("%w: status [training|export|remote|transcription]", errUsage)
	}
	if err != nil {
		return err
	}
	return a.printJSON(st)
}

func cmdModels(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "models")
	if err := parse(fs, args); err != nil {
		return err
	}
	models, err := a.client.Models(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tONNX\tJSON\tTESTABLE\tPATH")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%t\t%t\t%t\t%s\n", m.Name, m.HasONNX, m.HasJSON, m.Testable(), m.Path)
	}
	return tw.Flush()
}

func cmdDatasets(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "datasets")
	if err := parse(fs, args); err != nil {
		return err
	}
	ds, err := a.client.TrainingDatasets(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCLIPS\tMETADATA\tSIZE_MB\tPATH")
	for _, d := range ds {
		fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t%s\n", d.Name, d.AudioCount, d.HasMetadata, d.SizeMB.StringFixed(2), d.Path)
	}
	return tw.Flush()
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "export")
	name := fs.String("dataset", "", "dataset to package")
	platform := fs.String("platform", "colab", "colab, kaggle or paperspace")
	quality := fs.String("quality", "medium", "low, medium or high")
	epochs := fs.Int("epochs", 0, "training epochs (default: the quality preset)")
	wait := fs.Bool("wait", false, "follow the export until it ends")
	download := fs.Bool("download", false, "download the package when done (implies --wait)")
	dir := fs.String("dir", a.cfg.DownloadPath(), "download directory")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("dataset", *name); err != nil {
		return err
	}
	if *epochs <= 0 {
		*epochs = api.QualityEpochs(*quality)
	}
	ack, err := a.client.ExportCloud(ctx, api.ExportRequest{
		DatasetName: *name, Platform: *platform, Quality: *quality,
		Epochs: *epochs, AutoDownload: *download,
	})
	if err != nil {
		return err
	}
	a.ok("%s", nz(ack.Message, "export started"))
	if !*wait && !*download {
		return nil
	}
	st, err := follow(ctx, a, exportTracker(a))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "package:  %s\nnotebook: %s\n", a.client.ResolveURL(st.PackageURL), nz(st.NotebookURL, "-"))
	if *download {
		_, err = a.download(ctx, st.PackageURL, *dir)
	}
	return err
}

func cmdDownloadPackage(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "download-package")
	dir := fs.String("dir", a.cfg.DownloadPath(), "download directory")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: download-package [--dir DIR] <package url>", errUsage)
	}
	_, err := a.download(ctx, fs.Arg(0), *dir)
	return err
}

func cmdTranscribe(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "transcribe")
	model := fs.String("model", "", "dataset whose clips are transcribed")
	engine := fs.String("engine", "", "recognition engine (default: the server's)")
	language := fs.String("language", "pt", "language code")
	wait := fs.Bool("wait", false, "follow the transcription until it ends")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("model", *model); err != nil {
		return err
	}
	engines, err := a.client.TranscriptionEngines(ctx)
	if err != nil {
		return err
	}
	if *engine == "" {
		*engine = nz(engines.Default, "whisper")
	}
	if !contains(engines.Engines, *engine) {
		return fmt.Errorf("%w: engine %q not offered (%s)", errUsage, *engine, strings.Join(engines.Engines, ", "))
	}
	ack, err := a.client.StartTranscription(ctx, api.TranscriptionRequest{ModelName: *model, Engine: *engine, Language: *language})
	if err != nil {
		return err
	}
	a.ok("%s with %s", nz(ack.Message, "transcription started"), api.EngineLabel(*engine))
	if !*wait {
		return nil
	}
	st, err := follow(ctx, a, transcriptionTracker(a))
	if err != nil {
		return err
	}
	for _, r := range st.Results {
		fmt.Fprintf(a.out, "%s|%s\n", strings.TrimSuffix(r.File, ".wav"), r.Text)
	}
	a.ok("metadata.csv generated (%d files)", st.CompletedFiles)
	return nil
}

func cmdTextFile(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "text-file")
	model := fs.String("model", "", "dataset whose clips the lines pair with")
	file := fs.String("file", "", "text file, one utterance per line")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("model", *model); err != nil {
		return err
	}
	if err := required("file", *file); err != nil {
		return err
	}
	ack, err := a.client.UploadTextFile(ctx, *model, *file)
	if err != nil {
		return err
	}
	a.record(ctx, history.Entry{Kind: history.KindMetadata, Ref: *model, State: "generated", Detail: *file})
	a.ok("%s", nz(ack.Message, "CSV generated"))
	return nil
}

func cmdTestVoice(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "test-voice")
	model := fs.String("model", "", "trained model")
	text := fs.String("text", "This is a test of the trained voice.", "sentence to synthesize")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("model", *model); err != nil {
		return err
	}
	res, err := a.client.TestVoice(ctx, api.TestVoiceRequest{ModelName: *model, Text: *text})
	if err != nil {
		return err
	}
	a.ok("%s", nz(res.Message, "audio generated"))
	fmt.Fprintln(a.out, a.client.ResolveURL(res.AudioURL))
	return nil
}

func cmdRemote(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: remote start|stop|status|download", errUsage)
	}
	switch args[0] {
	case "start":
		return remoteStart(ctx, a, args[1:])
	case "stop":
		ack, err := a.client.StopRemoteMonitoring(ctx)
		if err != nil {
			return err
		}
		a.ok("%s", nz(ack.Message, "monitoring stopped"))
		return nil
	case "status":
		st, err := a.client.RemoteStatus(ctx)
		if err != nil {
			return err
		}
		printRemote(a, st)
		return nil
	case "download":
		fs := newFlags(a, "remote download")
		notebook := fs.String("notebook", "", "notebook URL serving the model")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		if err := required("notebook", *notebook); err != nil {
			return err
		}
		return remoteDownload(ctx, a, *notebook)
	}
	return fmt.Errorf("%w: remote start|stop|status|download", errUsage)
}

func remoteStart(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "remote start")
	platform := fs.String("platform", "colab", "where the run executes")
	id := fs.String("session-id", "", "remote session id (default: generated)")
	notebook := fs.String("notebook", "", "notebook URL")
	model := fs.String("model", "", "model trained remotely")
	wait := fs.Bool("wait", false, "follow the run until every epoch is reported")
	download := fs.Bool("download", false, "download the model when done (implies --wait)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		*id = uuid.NewString()
	}
	ack, err := a.client.StartRemoteMonitoring(ctx, api.RemoteSession{
		Platform: *platform, SessionID: *id, NotebookURL: *notebook, ModelName: *model,
	})
	if err != nil {
		return err
	}
	a.ok("%s (session %s)", nz(ack.Message, "monitoring started"), *id)
	if !*wait && !*download {
		return nil
	}
	st, err := follow(ctx, a, remoteTracker(a))
	if err != nil {
		return err
	}
	printRemote(a, st)
	if *download {
		return remoteDownload(ctx, a, *notebook)
	}
	return nil
}

func remoteDownload(ctx context.Context, a *app, notebook string) error {
	if notebook == "" {
		return fmt.Errorf("%w: --notebook is required to download the model", errUsage)
	}
	req := api.ManualDownloadRequest(notebook, time.Now())
	ack, err := a.client.DownloadTrainedModel(ctx, req)
	if err != nil {
		return err
	}
	a.ok("%s as %s", nz(ack.Message, "download started"), req.ModelName)
	return nil
}

func printRemote(a *app, st *api.RemoteStatus) {
	if !st.Monitoring {
		fmt.Fprintln(a.out, nz(st.Message, "monitoring inactive"))
		return
	}
	mt := st.Metrics
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	if st.Session != nil {
		fmt.Fprintf(tw, "session\t%s (%s)\n", st.Session.SessionID, st.Session.Platform)
	}
	fmt.Fprintf(tw, "status\t%s\n", session.RemoteMessage(mt.EpochsCompleted))
	fmt.Fprintf(tw, "progress\t%s%%\n", session.RemoteProgress(mt.EpochsCompleted).StringFixed(1))
	fmt.Fprintf(tw, "loss\t%s\n", mt.CurrentLoss.StringFixed(4))
	fmt.Fprintf(tw, "gpu\t%s%%\n", mt.AvgGPUUsage.StringFixed(1))
	fmt.Fprintf(tw, "memory\t%s%%\n", mt.MemoryUsage.StringFixed(1))
	fmt.Fprintf(tw, "remaining\t%s\n", session.FormatRemaining(mt.TimeRemaining))
	tw.Flush()
}

func cmdHistory(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "history")
	limit := fs.Int("limit", 20, "entries to show")
	kind := fs.String("kind", "", "only this kind (upload, training, export, ...)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if a.store == nil {
		return fmt.Errorf("history journal unavailable")
	}
	entries, err := a.store.RecentKind(ctx, *kind, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tKIND\tREF\tSTATE\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.At.Local().Format(time.DateTime), e.Kind, nz(e.Ref, "-"), nz(e.State, "-"), e.Detail)
	}
	return tw.Flush()
}

func nz(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func preview(items []string, n int) string {
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:n], ", ") + fmt.Sprintf(" (+%d)", len(items)-n)
}
