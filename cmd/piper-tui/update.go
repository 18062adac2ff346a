package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"piper-console/pkg/api"
	"piper-console/pkg/csvcheck"
	"piper-console/pkg/history"
	"piper-console/pkg/session"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	m.spin, cmd = m.spin.Update(msg)
	cmds = append(cmds, cmd)

	if km, ok := msg.(tea.KeyMsg); ok {
		if m.editing {
			m.editor, cmd = m.editor.Update(msg)
			cmds = append(cmds, cmd)
		}
		if m.csvEditing && km.String() != "esc" {
			m.csvEditor, cmd = m.csvEditor.Update(msg)
			cmds = append(cmds, cmd)
		}
		if m.activeTabID() == tabLogs {
			m.logView, cmd = m.logView.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.logView.Width = max(60, m.width-8)
		m.logView.Height = max(9, m.height-14)
		m.editor.Width = max(24, min(64, m.width/2))
		m.csvEditor.SetWidth(max(40, m.width-10))
		m.csvEditor.SetHeight(max(6, m.height-22))
		m.help.Width = m.width

	case tea.KeyMsg:
		cmds = append(cmds, m.handleKey(msg))

	case eventMsg:
		cmds = append(cmds, m.handleEvent(session.Event(msg)), waitEventCmd(m.events))

	case probeMsg:
		if msg.err != nil {
			m.appendLog("[api] server not reachable: " + msg.err.Error())
			cmds = append(cmds, m.setBanner(bannerInfo, "server not reachable at "+m.client.BaseURL()))
			break
		}
		m.training = msg.status
		if msg.status.IsTraining {
			m.appendLog("[system] training already in progress, resuming monitor")
			m.forms[tabTrain].set("model_name", msg.status.ModelName)
			m.monitors.Training.Start(m.ctx)
		}

	case trainingPolledMsg:
		if msg.err != nil {
			cmds = append(cmds, m.fail("training status", msg.err))
			break
		}
		m.training = msg.status

	case modelsMsg:
		if msg.err != nil {
			cmds = append(cmds, m.fail("load models", msg.err))
			break
		}
		m.applyModels(msg.models)

	case datasetsMsg:
		if msg.err != nil {
			cmds = append(cmds, m.fail("load datasets", msg.err))
			break
		}
		m.applyDatasets(msg.datasets)

	case enginesMsg:
		if msg.err != nil {
			cmds = append(cmds, m.fail("load engines", msg.err))
			break
		}
		m.applyEngines(msg.engines)

	case actionMsg:
		cmds = append(cmds, m.handleAction(msg))

	case checkMsg:
		delete(m.busy, "check")
		if msg.err != nil {
			cmds = append(cmds, m.fail("check dataset", msg.err))
			break
		}
		m.precheck = &msg
		if msg.previous != nil {
			m.appendLog(fmt.Sprintf("[system] metadata already uploaded for %s at %s", msg.previous.Ref, msg.previous.At.Format(time.DateTime)))
		}
		cmds = append(cmds, m.setBanner(bannerInfo, fmt.Sprintf("%d audio files checked", len(msg.audio))))

	case uploadMsg:
		delete(m.busy, "upload")
		if msg.check != nil {
			m.precheck = &checkMsg{check: msg.check, fingerprint: msg.fingerprint}
		}
		if msg.err != nil {
			cmds = append(cmds, m.fail("upload", msg.err))
			break
		}
		m.upload = msg.result
		m.forms[tabTrain].set("model_name", msg.model)
		m.appendLog(fmt.Sprintf("[api] uploaded %d audio files to %s", len(msg.result.AudioFiles), msg.result.ModelDir))
		cmds = append(cmds,
			m.setBanner(bannerSuccess, msg.result.Message),
			recordCmd(m.ctx, m.store, history.Entry{
				Kind: history.KindUpload, Ref: msg.model, State: "uploaded",
				Detail: fmt.Sprintf("%d audio files", len(msg.result.AudioFiles)), Fingerprint: msg.fingerprint,
			}),
			loadDatasetsCmd(m.ctx, m.client),
		)

	case testVoiceMsg:
		delete(m.busy, "test")
		if msg.err != nil {
			cmds = append(cmds, m.fail("test voice", msg.err))
			break
		}
		m.testResult = msg.result
		m.appendLog("[api] audio generated: " + m.client.ResolveURL(msg.result.AudioURL))
		cmds = append(cmds, m.setBanner(bannerSuccess, msg.result.Message))

	case downloadMsg:
		delete(m.busy, "download")
		if msg.err != nil {
			cmds = append(cmds, m.fail("download package", msg.err))
			break
		}
		m.downloaded = &msg
		m.appendLog(fmt.Sprintf("[system] package saved to %s (%d bytes)", msg.path, msg.size))
		cmds = append(cmds,
			m.setBanner(bannerSuccess, "package saved to "+msg.path),
			recordCmd(m.ctx, m.store, history.Entry{Kind: history.KindPackage, Ref: msg.path, State: "downloaded", Detail: fmt.Sprintf("%d bytes", msg.size), Fingerprint: msg.fingerprint}),
		)

	case csvLoadedMsg:
		if msg.err != nil {
			cmds = append(cmds, m.fail("load metadata", msg.err))
			break
		}
		m.csvPath = msg.path
		m.csvEditor.SetValue(msg.content)
		m.csvResult = nil
		if msg.template {
			cmds = append(cmds, m.setBanner(bannerInfo, "no local metadata.csv yet, loaded a template"))
		} else {
			cmds = append(cmds, m.setBanner(bannerInfo, "loaded "+msg.path))
		}

	case csvSavedMsg:
		delete(m.busy, "csv")
		if msg.err != nil {
			cmds = append(cmds, m.fail("save metadata", msg.err))
			break
		}
		m.csvPath = msg.path
		m.appendLog("[system] metadata saved to " + msg.path)
		cmds = append(cmds,
			m.setBanner(bannerSuccess, "CSV saved and uploaded"),
			recordCmd(m.ctx, m.store, history.Entry{Kind: history.KindMetadata, Ref: m.forms[subCSV].value("model"), State: "saved", Detail: msg.path}),
		)

	case historyMsg:
		if msg.err != nil {
			cmds = append(cmds, m.fail("load history", msg.err))
			break
		}
		m.historyRows = msg.entries

	case recordedMsg:
		if msg.err != nil {
			m.appendLog("[system] history write failed: " + msg.err.Error())
		}

	case bannerExpireMsg:
		if msg.seq == m.banner.seq {
			m.banner = banner{}
		}

	case animTickMsg:
		m.animate()
		cmds = append(cmds, animTickCmd())
	}

	return m, tea.Batch(cmds...)
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}
	if m.splashActive {
		switch msg.String() {
		case "enter", " ", "space", "esc":
			m.splashActive = false
		case "q":
			return m.quit()
		}
		return nil
	}
	if m.editing {
		switch {
		case key.Matches(msg, m.keys.Apply):
			m.applyEdit()
		case key.Matches(msg, m.keys.Cancel):
			m.cancelEdit()
		}
		return nil
	}
	if m.csvEditing {
		if key.Matches(msg, m.keys.Cancel) {
			m.csvEditing = false
			m.csvEditor.Blur()
		}
		return nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.TabNext):
		return m.tabs.Next()
	case key.Matches(msg, m.keys.TabPrev):
		return m.tabs.Prev()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil
	}

	if f := m.activeForm(); f != nil {
		switch {
		case key.Matches(msg, m.keys.Down):
			f.move(1)
			return nil
		case key.Matches(msg, m.keys.Up):
			f.move(-1)
			return nil
		case key.Matches(msg, m.keys.Cycle):
			f.cycle()
			m.onCycled(f.selected())
			return nil
		case key.Matches(msg, m.keys.Edit):
			m.startEdit()
			return nil
		case key.Matches(msg, m.keys.Apply) && m.activeFormKey() != subCSV:
			m.startEdit()
			return nil
		}
	}

	switch m.activeTabID() {
	case tabUpload:
		switch {
		case key.Matches(msg, m.keys.Start):
			return m.startUpload()
		case key.Matches(msg, m.keys.Validate):
			f := m.forms[tabUpload]
			m.busy["check"] = true
			return checkUploadCmd(m.ctx, m.store, f.value("audio_dir"), f.value("metadata_file"))
		}
	case tabTrain:
		switch {
		case key.Matches(msg, m.keys.Start):
			return m.startTraining()
		case key.Matches(msg, m.keys.Stop):
			m.monitors.Training.Stop()
			m.appendLog("[session] training monitor stopped")
		case key.Matches(msg, m.keys.Refresh):
			return pollTrainingCmd(m.ctx, m.monitors.Training)
		}
	case tabTest:
		switch {
		case key.Matches(msg, m.keys.Start):
			return m.startTestVoice()
		case key.Matches(msg, m.keys.Refresh):
			return loadModelsCmd(m.ctx, m.client)
		}
	case tabExport:
		switch {
		case key.Matches(msg, m.keys.Start):
			return m.startExport()
		case key.Matches(msg, m.keys.Stop):
			m.monitors.Export.Stop()
		case key.Matches(msg, m.keys.Download):
			return m.downloadPackage()
		case key.Matches(msg, m.keys.Refresh):
			return loadDatasetsCmd(m.ctx, m.client)
		}
	case tabMonitor:
		switch {
		case key.Matches(msg, m.keys.Start):
			return m.startRemote()
		case key.Matches(msg, m.keys.Stop):
			m.monitors.Remote.Stop()
			m.remoteReady = false
			return ackCmd(actRemoteStop, func() (*api.Ack, error) { return m.client.StopRemoteMonitoring(m.ctx) })
		case key.Matches(msg, m.keys.Download):
			return m.manualDownload()
		}
	case tabAutomation:
		return m.handleAutomationKey(msg)
	case tabLogs:
		if key.Matches(msg, m.keys.ClearLog) {
			m.logs = nil
			m.logView.SetContent("")
		}
	case tabHistory:
		if key.Matches(msg, m.keys.Refresh) {
			return loadHistoryCmd(m.ctx, m.store)
		}
	}
	return nil
}

func (m *model) handleAutomationKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.SubNext):
		return m.subTabs.Next()
	case key.Matches(msg, m.keys.SubPrev):
		return m.subTabs.Prev()
	case key.Matches(msg, m.keys.Refresh):
		return tea.Batch(loadEnginesCmd(m.ctx, m.client), loadDatasetsCmd(m.ctx, m.client))
	}

	switch m.subTabs.ActiveID() {
	case subTranscribe:
		switch {
		case key.Matches(msg, m.keys.Start):
			return m.startTranscription()
		case key.Matches(msg, m.keys.Stop):
			m.monitors.Transcription.Stop()
		}
	case subTextFile:
		if key.Matches(msg, m.keys.Start) {
			f := m.forms[subTextFile]
			if err := f.require("model", "text_file"); err != nil {
				return m.setBanner(bannerError, err.Error())
			}
			name, file := f.value("model"), f.value("text_file")
			return ackCmd(actTextFile, func() (*api.Ack, error) { return m.client.UploadTextFile(m.ctx, name, file) })
		}
	case subCSV:
		name := m.forms[subCSV].value("model")
		switch {
		case key.Matches(msg, m.keys.Apply):
			m.csvEditing = true
			return m.csvEditor.Focus()
		case key.Matches(msg, m.keys.Validate):
			res := csvcheck.Validate(m.csvEditor.Value())
			m.csvResult = &res
		case key.Matches(msg, m.keys.Open):
			if name == "" {
				return m.setBanner(bannerError, "select a dataset first")
			}
			return loadCSVCmd(m.localDatasetDir(name), name)
		case key.Matches(msg, m.keys.Write):
			if name == "" {
				return m.setBanner(bannerError, "select a target dataset")
			}
			content := m.csvEditor.Value()
			if strings.TrimSpace(content) == "" {
				return m.setBanner(bannerError, "the CSV is empty")
			}
			res := csvcheck.Validate(content)
			m.csvResult = &res
			if !res.Valid {
				return m.setBanner(bannerError, res.Err().Error())
			}
			m.busy["csv"] = true
			return saveCSVCmd(m.ctx, m.client, m.localDatasetDir(name), name, content)
		}
	}
	return nil
}

func (m *model) startUpload() tea.Cmd {
	if m.busy["upload"] {
		return nil
	}
	f := m.forms[tabUpload]
	if err := f.require("model_name"); err != nil {
		return m.setBanner(bannerError, err.Error())
	}
	if f.value("audio_dir") == "" && f.value("metadata_file") == "" {
		return m.setBanner(bannerError, "select audio files or a metadata file")
	}
	m.busy["upload"] = true
	m.appendLog("[api] uploading files for " + f.value("model_name"))
	return uploadCmd(m.ctx, m.client, f.value("model_name"), f.value("audio_dir"), f.value("metadata_file"))
}

func (m *model) startTraining() tea.Cmd {
	if m.monitors.Training.Active() {
		return m.setBanner(bannerError, "a training run is already being monitored")
	}
	req, err := trainingRequest(m.forms[tabTrain])
	if err != nil {
		return m.setBanner(bannerError, err.Error())
	}
	m.appendLog(fmt.Sprintf("[api] start training %s (%s, %d epochs)", req.ModelName, req.Quality, api.QualityEpochs(req.Quality)))
	return ackCmd(actTrain, func() (*api.Ack, error) { return m.client.StartTraining(m.ctx, req) })
}

func (m *model) startTestVoice() tea.Cmd {
	f := m.forms[tabTest]
	if err := f.require("model"); err != nil {
		return m.setBanner(bannerError, "select a testable model")
	}
	if m.busy["test"] {
		return nil
	}
	m.busy["test"] = true
	req := api.TestVoiceRequest{ModelName: f.value("model"), Text: f.value("text")}
	return testVoiceCmd(m.ctx, m.client, req)
}

func (m *model) startExport() tea.Cmd {
	if m.monitors.Export.Active() {
		return m.setBanner(bannerError, "an export is already being monitored")
	}
	req, err := exportRequest(m.forms[tabExport])
	if err != nil {
		return m.setBanner(bannerError, err.Error())
	}
	m.downloaded = nil
	return ackCmd(actExport, func() (*api.Ack, error) { return m.client.ExportCloud(m.ctx, req) })
}

func (m *model) downloadPackage() tea.Cmd {
	if m.cloud == nil || m.cloud.PackageURL == "" {
		return m.setBanner(bannerError, "no package to download yet")
	}
	if m.busy["download"] {
		return nil
	}
	m.busy["download"] = true
	return downloadPackageCmd(m.ctx, m.client, m.cloud.PackageURL, m.cfg.DownloadPath())
}

func (m *model) startRemote() tea.Cmd {
	f := m.forms[tabMonitor]
	if f.value("session_id") == "" {
		f.set("session_id", uuid.NewString())
	}
	req := api.RemoteSession{
		Platform:    f.value("platform"),
		SessionID:   f.value("session_id"),
		NotebookURL: f.value("notebook_url"),
		ModelName:   f.value("model_name"),
	}
	m.remoteReady = false
	return ackCmd(actRemoteStart, func() (*api.Ack, error) { return m.client.StartRemoteMonitoring(m.ctx, req) })
}

func (m *model) manualDownload() tea.Cmd {
	notebook := m.forms[tabMonitor].value("notebook_url")
	if m.remote != nil && m.remote.Session != nil && m.remote.Session.NotebookURL != "" {
		notebook = m.remote.Session.NotebookURL
	}
	if notebook == "" {
		return m.setBanner(bannerError, "notebook URL is required to download the model")
	}
	req := api.ManualDownloadRequest(notebook, time.Now())
	m.appendLog("[api] downloading remote model as " + req.ModelName)
	return ackCmd(actRemoteDownload, func() (*api.Ack, error) { return m.client.DownloadTrainedModel(m.ctx, req) })
}

func (m *model) startTranscription() tea.Cmd {
	if m.monitors.Transcription.Active() {
		return m.setBanner(bannerError, "a transcription is already being monitored")
	}
	req, err := transcriptionRequest(m.forms[subTranscribe])
	if err != nil {
		return m.setBanner(bannerError, err.Error())
	}
	return ackCmd(actTranscribe, func() (*api.Ack, error) { return m.client.StartTranscription(m.ctx, req) })
}

// handleAction starts the matching session once the server accepted the
// command.
func (m *model) handleAction(msg actionMsg) tea.Cmd {
	if msg.err != nil {
		return m.fail(msg.action.String(), msg.err)
	}
	text := nz(msg.ack.Message, msg.action.String()+" ok")
	m.appendLog(fmt.Sprintf("[api] %s: %s", msg.action, text))
	switch msg.action {
	case actTrain:
		m.trainAnim = springValue{}
		m.monitors.Training.Start(m.ctx)
	case actExport:
		m.exportAnim = springValue{}
		m.monitors.Export.Start(m.ctx)
	case actRemoteStart:
		m.remoteAnim = springValue{}
		m.lossSeries = nil
		m.monitors.Remote.Start(m.ctx)
	case actTranscribe:
		m.transAnim = springValue{}
		m.monitors.Transcription.Start(m.ctx)
	case actTextFile:
		a := *msg.ack
		m.textFileAck = &a
	case actRemoteDownload:
		return tea.Batch(m.setBanner(bannerSuccess, text), loadModelsCmd(m.ctx, m.client))
	case actRemoteStop:
		return m.setBanner(bannerInfo, text)
	}
	return m.setBanner(bannerSuccess, text)
}

// handleEvent folds a session event into the view and reacts to state
// transitions.
func (m *model) handleEvent(ev session.Event) tea.Cmd {
	switch st := ev.Status.(type) {
	case *api.TrainingStatus:
		m.training = st
	case *api.CloudStatus:
		m.cloud = st
	case *api.RemoteStatus:
		m.remote = st
		if st.Monitoring && st.Metrics.EpochsCompleted > 0 {
			m.lossSeries = appendSeries(m.lossSeries, st.Metrics.CurrentLoss.InexactFloat64(), 240)
		}
	case *api.TranscriptionStatus:
		m.transcription = st
	}
	if ev.Err != nil {
		m.appendLog(fmt.Sprintf("[session] %s poll failed: %v", ev.Kind, ev.Err))
		return nil
	}
	prev, ok := m.states[ev.Kind]
	if !ok {
		prev = session.StateIdle
	}
	m.states[ev.Kind] = ev.State
	if prev == ev.State {
		return nil
	}
	m.appendLog(fmt.Sprintf("[session] %s %s -> %s", ev.Kind, prev, ev.State))
	cmds := []tea.Cmd{recordCmd(m.ctx, m.store, history.FromEvent(ev))}

	switch ev.State {
	case session.StateCompleted:
		cmds = append(cmds, m.onCompleted(ev.Kind))
	case session.StateFailed:
		cmds = append(cmds, m.setBanner(bannerError, failureText(ev)))
	}
	return tea.Batch(cmds...)
}

func (m *model) onCompleted(kind session.Kind) tea.Cmd {
	switch kind {
	case session.KindTraining:
		return tea.Batch(
			m.setBanner(bannerSuccess, "training complete"),
			loadModelsCmd(m.ctx, m.client),
			loadDatasetsCmd(m.ctx, m.client),
		)
	case session.KindExport:
		cmds := []tea.Cmd{m.setBanner(bannerSuccess, "export complete")}
		if m.forms[tabExport].boolValue("auto_download") && m.cloud != nil && m.cloud.PackageURL != "" {
			m.busy["download"] = true
			cmds = append(cmds, downloadPackageCmd(m.ctx, m.client, m.cloud.PackageURL, m.cfg.DownloadPath()))
		}
		return tea.Batch(cmds...)
	case session.KindRemote:
		m.remoteReady = true
		return m.setBanner(bannerSuccess, "remote training complete, press d to download the model")
	case session.KindTranscription:
		n := 0
		if m.transcription != nil {
			n = m.transcription.CompletedFiles
		}
		return tea.Batch(
			m.setBanner(bannerSuccess, fmt.Sprintf("transcription complete, metadata.csv generated (%d files)", n)),
			loadDatasetsCmd(m.ctx, m.client),
		)
	}
	return nil
}

func failureText(ev session.Event) string {
	switch st := ev.Status.(type) {
	case *api.TrainingStatus:
		return "training failed: " + nz(st.CurrentStep, "unknown error")
	case *api.CloudStatus:
		return "export failed: " + nz(st.Step, "unknown error")
	case *api.TranscriptionStatus:
		if len(st.Errors) > 0 {
			return "transcription failed: " + strings.Join(st.Errors, "; ")
		}
		return "transcription ended before completion"
	}
	return fmt.Sprintf("%s failed", ev.Kind)
}

// animate eases every progress bar toward its latest reported value.
func (m *model) animate() {
	step := func(v *springValue, target float64) {
		v.pos, v.vel = m.spring.Update(v.pos, v.vel, target)
		if math.Abs(v.pos-target) < 0.0005 && math.Abs(v.vel) < 0.0005 {
			v.pos, v.vel = target, 0
		}
	}
	if m.training != nil {
		step(&m.trainAnim, ratio(m.training.Progress.InexactFloat64()))
	}
	if m.cloud != nil {
		step(&m.exportAnim, ratio(float64(m.cloud.Progress)))
	}
	if m.remote != nil {
		step(&m.remoteAnim, ratio(session.RemoteProgress(m.remote.Metrics.EpochsCompleted).InexactFloat64()))
	}
	if m.transcription != nil {
		step(&m.transAnim, ratio(m.transcription.Progress.InexactFloat64()))
	}
	if m.splashActive {
		step(&m.splashProg, 1.0)
		if time.Since(m.splashStart) >= m.splashMin && m.splashProg.pos >= 0.995 {
			m.splashActive = false
		}
	}
}

func ratio(percent float64) float64 {
	return clamp01(percent / 100)
}

func percent(d decimal.Decimal) string {
	return d.Round(1).String() + "%"
}
