package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"piper-console/pkg/api"
	"piper-console/pkg/csvcheck"
	"piper-console/pkg/session"
)

func (m model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	if m.splashActive {
		return m.viewSplash()
	}
	header := m.styles.title.Render("Piper Console") + "  " + m.renderTabs()
	bannerLine := m.viewBanner()

	contentW := max(70, m.width-4)
	footer := m.viewFooter(contentW)
	contentH := max(8, m.height-lipgloss.Height(header)-lipgloss.Height(footer)-3)

	var content string
	switch m.activeTabID() {
	case tabUpload:
		content = m.viewUploadTab(contentW)
	case tabTrain:
		content = m.viewTrainTab(contentW)
	case tabTest:
		content = m.viewTestTab(contentW)
	case tabExport:
		content = m.viewExportTab(contentW)
	case tabMonitor:
		content = m.viewMonitorTab(contentW)
	case tabAutomation:
		content = m.viewAutomationTab(contentW)
	case tabLogs:
		content = m.viewLogsTab(contentW, contentH)
	case tabHistory:
		content = m.viewHistoryTab(contentW, contentH)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, bannerLine, fitHeight(content, contentH), footer)
}

func (m model) renderTabs() string {
	titles := m.tabs.Titles()
	parts := make([]string, len(titles))
	for i, t := range titles {
		if i == m.tabs.Index() {
			parts[i] = m.styles.tabActive.Render(t)
		} else {
			parts[i] = m.styles.tab.Render(t)
		}
	}
	return strings.Join(parts, " ")
}

func (m model) viewBanner() string {
	switch m.banner.kind {
	case bannerSuccess:
		return m.styles.bannerOK.Render(m.banner.text)
	case bannerInfo:
		return m.styles.bannerInfo.Render(m.banner.text)
	case bannerError:
		return m.styles.bannerErr.Render(m.banner.text)
	}
	return ""
}

func (m model) panel(title string, lines []string, w int) string {
	return m.styles.panel.Width(panelInnerWidth(w)).Render(m.styles.panelTitle.Render(title) + "\n" + strings.Join(lines, "\n"))
}

// columns lays two panels side by side, or stacked on narrow terminals.
func (m model) columns(w int, left, right func(w int) string) string {
	if w < 110 {
		return lipgloss.JoinVertical(lipgloss.Left, left(w), right(w))
	}
	leftW := max(44, int(float64(w)*0.48))
	rightW := max(30, w-leftW-2)
	return lipgloss.JoinHorizontal(lipgloss.Top, left(leftW), "  ", right(rightW))
}

func (m model) viewForm(title string, f *form, w int) string {
	inner := panelInnerWidth(w)
	lines := make([]string, 0, len(f.fields)+4)
	for i, fd := range f.fields {
		val := fieldDisplay(fd)
		if i == f.idx && m.editing {
			val = m.editor.View()
		} else {
			val = truncateWithEllipsis(val, max(8, inner-20))
		}
		row := fmt.Sprintf("%-16s %s", fd.Label, val)
		if i == f.idx {
			lines = append(lines, m.styles.selected.Render("> "+row))
		} else {
			lines = append(lines, "  "+row)
		}
	}
	if fd := f.selected(); fd != nil && fd.Desc != "" {
		lines = append(lines, "")
		for _, ln := range wrapText(fd.Desc, max(10, inner-2)) {
			lines = append(lines, m.styles.dim.Render(ln))
		}
	}
	return m.panel(title, lines, w)
}

func fieldDisplay(fd cfgField) string {
	switch fd.Type {
	case fieldBool:
		if fd.Value == "true" {
			return "[x]"
		}
		return "[ ]"
	case fieldChoice:
		v := nz(fd.Value, "-")
		if fd.Key == "engine" {
			v = api.EngineLabel(v)
		}
		return "< " + v + " >"
	}
	return pathOrDash(fd.Value)
}

func (m model) stateBadge(kind session.Kind) string {
	st, ok := m.states[kind]
	if !ok {
		st = session.StateIdle
	}
	switch st {
	case session.StateActive:
		return m.styles.warn.Render(m.spin.View() + " ACTIVE")
	case session.StateCompleted:
		return m.styles.ok.Render("COMPLETED")
	case session.StateFailed:
		return m.styles.err.Render("FAILED")
	}
	return m.styles.dim.Render("IDLE")
}

func (m model) bar(v springValue, w int) string {
	barW := max(14, panelInnerWidth(w)-10)
	return fmt.Sprintf("%s %3d%%", progressBar(v.pos, barW), int(math.Round(clamp01(v.pos)*100)))
}

func (m model) checkLines(res *csvcheck.Result, limit int) []string {
	c := res.Counts()
	state := m.styles.ok.Render("valid")
	if !res.Valid {
		state = m.styles.err.Render("invalid")
	}
	lines := []string{fmt.Sprintf("Metadata: %s | %d entries | %d errors | %d warnings", state, res.Entries, c[csvcheck.TypeError], c[csvcheck.TypeWarning])}
	for i, msg := range res.Messages {
		if i == limit {
			lines = append(lines, m.styles.dim.Render(fmt.Sprintf("... %d more", len(res.Messages)-limit)))
			break
		}
		switch msg.Type {
		case csvcheck.TypeError:
			lines = append(lines, m.styles.err.Render("x ")+msg.Text)
		case csvcheck.TypeWarning:
			lines = append(lines, m.styles.warn.Render("! ")+msg.Text)
		default:
			lines = append(lines, m.styles.ok.Render("v ")+msg.Text)
		}
	}
	return lines
}

func (m model) viewUploadTab(w int) string {
	return m.columns(w,
		func(w int) string { return m.viewForm("Upload Dataset", m.forms[tabUpload], w) },
		func(w int) string {
			lines := []string{}
			switch {
			case m.busy["upload"]:
				lines = append(lines, m.spin.View()+" uploading...")
			case m.busy["check"]:
				lines = append(lines, m.spin.View()+" checking...")
			}
			if pc := m.precheck; pc != nil {
				lines = append(lines, fmt.Sprintf("Audio files: %d", len(pc.audio)))
				if pc.check != nil {
					lines = append(lines, m.checkLines(pc.check, 6)...)
				}
				if pc.fingerprint != "" {
					lines = append(lines, "Fingerprint: "+truncateWithEllipsis(pc.fingerprint, 20))
				}
				if pc.previous != nil {
					lines = append(lines, m.styles.warn.Render(fmt.Sprintf("Same metadata uploaded to %s on %s", pc.previous.Ref, pc.previous.At.Format(time.DateTime))))
				}
			} else {
				lines = append(lines, m.styles.dim.Render("press v to check the files before uploading"))
			}
			if up := m.upload; up != nil {
				lines = append(lines, "", m.styles.ok.Render(up.Message),
					"Model dir: "+pathOrDash(up.ModelDir),
					fmt.Sprintf("Audio on server: %d", len(up.AudioFiles)))
			}
			return m.panel("Pre-check", lines, w)
		})
}

func (m model) viewTrainTab(w int) string {
	return m.columns(w,
		func(w int) string { return m.viewForm("Training Config", m.forms[tabTrain], w) },
		func(w int) string {
			lines := []string{"Status: " + m.stateBadge(session.KindTraining)}
			st := m.training
			if st == nil {
				lines = append(lines, m.styles.dim.Render("no training status yet"))
				return m.panel("Training", lines, w)
			}
			lines = append(lines,
				"Model: "+pathOrDash(st.ModelName),
				m.bar(m.trainAnim, w),
				"Step: "+nz(st.CurrentStep, "-"),
				"",
			)
			tail := st.Log
			if len(tail) > 8 {
				tail = tail[len(tail)-8:]
			}
			for _, ln := range tail {
				lines = append(lines, m.styles.dim.Render(truncateWithEllipsis(ln, max(10, panelInnerWidth(w)-2))))
			}
			return m.panel("Training", lines, w)
		})
}

func (m model) viewTestTab(w int) string {
	return m.columns(w,
		func(w int) string { return m.viewForm("Test Voice", m.forms[tabTest], w) },
		func(w int) string {
			lines := []string{}
			testable := 0
			for _, md := range m.models {
				mark := m.styles.dim.Render("(incomplete)")
				if md.Testable() {
					testable++
					mark = m.styles.ok.Render("ready")
				}
				lines = append(lines, fmt.Sprintf("- %s %s", md.Name, mark))
			}
			if len(m.models) == 0 {
				lines = append(lines, m.styles.dim.Render("(no models yet)"))
			}
			lines = append([]string{fmt.Sprintf("%d of %d models testable", testable, len(m.models)), ""}, lines...)
			if m.busy["test"] {
				lines = append(lines, "", m.spin.View()+" synthesizing...")
			}
			if r := m.testResult; r != nil {
				lines = append(lines, "", m.styles.ok.Render(nz(r.Message, "audio generated")), "Audio: "+m.client.ResolveURL(r.AudioURL))
			}
			return m.panel("Models", lines, w)
		})
}

func (m model) viewExportTab(w int) string {
	return m.columns(w,
		func(w int) string { return m.viewForm("Cloud Export", m.forms[tabExport], w) },
		func(w int) string {
			lines := []string{"Status: " + m.stateBadge(session.KindExport)}
			if st := m.cloud; st != nil {
				lines = append(lines,
					"Platform: "+pathOrDash(st.Platform),
					m.bar(m.exportAnim, w),
					"Step: "+nz(st.Step, "-"),
				)
				if st.PackageURL != "" {
					lines = append(lines, "Package: "+m.client.ResolveURL(st.PackageURL), m.styles.dim.Render("press d to download"))
				}
				if st.NotebookURL != "" {
					lines = append(lines, "Notebook: "+st.NotebookURL)
				}
			}
			if m.busy["download"] {
				lines = append(lines, m.spin.View()+" downloading package...")
			}
			if d := m.downloaded; d != nil {
				lines = append(lines, "",
					m.styles.ok.Render("Saved: ")+d.path,
					fmt.Sprintf("Size: %d bytes", d.size),
					"blake3: "+truncateWithEllipsis(d.fingerprint, 20))
			}
			lines = append(lines, "", fmt.Sprintf("%d datasets on the server", len(m.datasets)))
			for _, d := range m.datasets {
				meta := m.styles.err.Render("no metadata")
				if d.HasMetadata {
					meta = m.styles.ok.Render("metadata")
				}
				lines = append(lines, fmt.Sprintf("- %s: %d clips, %s MB, %s", d.Name, d.AudioCount, d.SizeMB.StringFixed(1), meta))
			}
			return m.panel("Export", lines, w)
		})
}

func (m model) viewMonitorTab(w int) string {
	return m.columns(w,
		func(w int) string { return m.viewForm("Remote Session", m.forms[tabMonitor], w) },
		func(w int) string {
			lines := []string{"Status: " + m.stateBadge(session.KindRemote)}
			st := m.remote
			if st == nil || !st.Monitoring {
				msg := "monitoring inactive"
				if st != nil {
					msg = nz(st.Message, msg)
				}
				lines = append(lines, m.styles.dim.Render(msg))
				return m.panel("Remote Training", lines, w)
			}
			mt := st.Metrics
			if st.Session != nil {
				lines = append(lines, fmt.Sprintf("Session: %s (%s)", st.Session.SessionID, st.Session.Platform))
			}
			lines = append(lines,
				session.RemoteMessage(mt.EpochsCompleted),
				m.bar(m.remoteAnim, w),
				fmt.Sprintf("Epoch %d/%d | Loss %s", mt.EpochsCompleted, session.RemoteEpochs, mt.CurrentLoss.StringFixed(4)),
				fmt.Sprintf("GPU %s%% | Memory %s%%", mt.AvgGPUUsage.StringFixed(1), mt.MemoryUsage.StringFixed(1)),
				"Remaining: "+session.FormatRemaining(mt.TimeRemaining),
				"Loss "+sparkline(m.lossSeries, max(8, panelInnerWidth(w)-8)),
			)
			if m.remoteReady {
				lines = append(lines, "", m.styles.ok.Render("model ready, press d to download"))
			}
			return m.panel("Remote Training", lines, w)
		})
}

func (m model) renderSubTabs() string {
	titles := m.subTabs.Titles()
	parts := make([]string, len(titles))
	for i, t := range titles {
		if i == m.subTabs.Index() {
			parts[i] = m.styles.subTab.Render(t)
		} else {
			parts[i] = m.styles.tab.Render(t)
		}
	}
	return strings.Join(parts, " ")
}

func (m model) viewAutomationTab(w int) string {
	var body string
	switch m.subTabs.ActiveID() {
	case subTranscribe:
		body = m.columns(w,
			func(w int) string { return m.viewForm("Transcription", m.forms[subTranscribe], w) },
			m.viewTranscriptionStatus)
	case subTextFile:
		body = m.columns(w,
			func(w int) string { return m.viewForm("Text File", m.forms[subTextFile], w) },
			func(w int) string {
				lines := []string{
					"Lines are paired with the dataset's clips in sorted order.",
					"Extra lines or clips are ignored.",
				}
				if a := m.textFileAck; a != nil {
					lines = append(lines, "", m.styles.ok.Render(nz(a.Message, "CSV generated")))
				}
				return m.panel("Pairing", lines, w)
			})
	case subCSV:
		body = lipgloss.JoinVertical(lipgloss.Left,
			m.viewForm("Target", m.forms[subCSV], w),
			m.viewCSVEditor(w))
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderSubTabs(), body)
}

func (m model) viewTranscriptionStatus(w int) string {
	lines := []string{"Status: " + m.stateBadge(session.KindTranscription)}
	st := m.transcription
	if st == nil {
		return m.panel("Progress", lines, w)
	}
	lines = append(lines,
		m.bar(m.transAnim, w)+" ("+percent(st.Progress)+")",
		fmt.Sprintf("Files: %d/%d", st.CompletedFiles, st.TotalFiles),
		"Current: "+pathOrDash(st.CurrentFile),
	)
	for _, e := range st.Errors {
		lines = append(lines, m.styles.err.Render("x ")+e)
	}
	results := st.Results
	if len(results) > 5 {
		results = results[len(results)-5:]
	}
	for _, r := range results {
		lines = append(lines, truncateWithEllipsis(r.File+": "+r.Text, max(10, panelInnerWidth(w)-2)))
	}
	return m.panel("Progress", lines, w)
}

func (m model) viewCSVEditor(w int) string {
	title := "metadata.csv"
	if m.csvPath != "" {
		title = m.csvPath
	}
	mode := m.styles.dim.Render("enter to edit, o open, v validate, w save + upload")
	if m.csvEditing {
		mode = m.styles.warn.Render("editing, esc to leave")
	}
	lines := []string{mode, m.csvEditor.View()}
	if m.busy["csv"] {
		lines = append(lines, m.spin.View()+" saving...")
	}
	if m.csvResult != nil {
		lines = append(lines, m.checkLines(m.csvResult, 5)...)
	}
	return m.panel(title, lines, w)
}

func (m model) viewLogsTab(w, h int) string {
	lv := m.logView
	innerW := max(20, panelInnerWidth(w)-2)
	atBottom := lv.AtBottom()
	lv.Width = innerW
	lv.Height = max(4, h-3)

	// Wrap to the viewport width so long lines don't inflate the height.
	wrapped := make([]string, 0, len(m.logs)*2)
	for _, ln := range m.logs {
		wrapped = append(wrapped, wrapText(ln, innerW)...)
	}
	lv.SetContent(strings.Join(wrapped, "\n"))
	if atBottom {
		lv.GotoBottom()
	}
	return fitHeight(m.panel("Live Logs", []string{lv.View()}, w), h)
}

func (m model) viewHistoryTab(w, h int) string {
	if m.store == nil {
		return m.panel("History", []string{m.styles.dim.Render("history journal disabled")}, w)
	}
	lines := []string{m.styles.dim.Render(fmt.Sprintf("%-19s %-13s %-24s %-10s %s", "when", "kind", "ref", "state", "detail"))}
	for _, e := range m.historyRows {
		if len(lines) >= h-3 {
			break
		}
		row := fmt.Sprintf("%-19s %-13s %-24s %-10s %s",
			e.At.Local().Format(time.DateTime), e.Kind, truncateWithEllipsis(nz(e.Ref, "-"), 24), nz(e.State, "-"), e.Detail)
		lines = append(lines, truncateWithEllipsis(row, max(20, panelInnerWidth(w)-2)))
	}
	if len(m.historyRows) == 0 {
		lines = append(lines, m.styles.dim.Render("(nothing recorded yet)"))
	}
	return m.panel("History", lines, w)
}

func (m model) viewFooter(w int) string {
	base := []string{"[tab/h/l] switch tabs", "[s] start", "[x] stop", "[r] refresh", "[q] quit"}
	context := []string{}
	switch m.activeTabID() {
	case tabUpload:
		context = []string{"[j/k] select field", "[e/enter] edit", "[v] check files", "[s] upload"}
	case tabTrain:
		context = []string{"[j/k] select field", "[e/enter] edit", "[space] cycle choice", "[s] start training", "[x] stop monitor", "[r] poll now"}
	case tabTest:
		context = []string{"[space] cycle model", "[e/enter] edit text", "[s] synthesize", "[r] reload models"}
	case tabExport:
		context = []string{"[space] cycle choice", "quality resets epochs", "[s] export", "[d] download package"}
	case tabMonitor:
		context = []string{"[e/enter] edit", "[s] start monitoring", "[x] stop", "[d] download model"}
	case tabAutomation:
		context = []string{"[left/right] sub-tab", "[s] start/send"}
		if m.subTabs.ActiveID() == subCSV {
			context = []string{"[left/right] sub-tab", "[enter] edit CSV", "[esc] leave editor", "[o] open", "[v] validate", "[w] save + upload"}
		}
	case tabLogs:
		context = []string{"[pgup/pgdown/home/end] scroll logs", "[c] clear logs"}
	case tabHistory:
		context = []string{"Uploads, runs and downloads from the local journal", "[r] refresh"}
	}
	if m.editing {
		context = []string{"Typing mode active: enter apply", "[esc] cancel"}
	}
	lines := []string{
		"Global: " + strings.Join(base, "  "),
		"Context: " + strings.Join(context, "  "),
	}
	body := []string{}
	for _, ln := range lines {
		body = append(body, wrapText(ln, max(20, w-8))...)
	}
	body = append(body, m.help.View(m.keys))
	style := m.styles.panel.Copy().Padding(0, 1)
	return style.Width(panelInnerWidth(w)).Render(strings.Join(body, "\n"))
}

func (m model) viewSplash() string {
	title := "Piper Voice Console"
	prog := clamp01(m.splashProg.pos)
	reveal := max(0, min(len(title), int(math.Round(float64(len(title))*prog))))
	head := m.styles.splashText.Render(title[:reveal]) + m.styles.dim.Render(title[reveal:])

	barW := max(24, min(56, m.width-20))
	done := max(0, min(barW, int(math.Round(float64(barW)*prog))))
	bar := "[" + strings.Repeat("=", done) + strings.Repeat(" ", barW-done) + "]"

	// A waveform that settles as loading finishes.
	t := time.Since(m.splashStart).Seconds()
	amp := 1 - 0.6*prog
	var wb strings.Builder
	for i := 0; i < barW; i++ {
		y := math.Abs(math.Sin(float64(i)*0.35+t*4) * math.Cos(float64(i)*0.11-t)) * amp
		switch {
		case y > 0.6:
			wb.WriteRune('█')
		case y > 0.35:
			wb.WriteRune('▆')
		case y > 0.15:
			wb.WriteRune('▃')
		default:
			wb.WriteRune('▁')
		}
	}
	wave := lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Render(wb.String())

	body := lipgloss.JoinVertical(
		lipgloss.Center,
		head,
		"",
		wave,
		bar,
		m.styles.dim.Render("api "+m.client.BaseURL()),
		m.styles.dim.Render("Press Enter to skip"),
	)
	card := m.styles.splash.Render(body)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, card)
}
