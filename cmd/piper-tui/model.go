package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"piper-console/pkg/api"
	"piper-console/pkg/config"
	"piper-console/pkg/csvcheck"
	"piper-console/pkg/history"
	"piper-console/pkg/session"
	"piper-console/pkg/tabs"
)

const (
	tabUpload     = "upload"
	tabTrain      = "train"
	tabTest       = "test"
	tabExport     = "export"
	tabMonitor    = "monitor"
	tabAutomation = "automation"
	tabLogs       = "logs"
	tabHistory    = "history"

	subTranscribe = "transcribe"
	subTextFile   = "textfile"
	subCSV        = "csv"

	maxLogLines = 3500
)

type bannerKind int

const (
	bannerNone bannerKind = iota
	bannerInfo
	bannerSuccess
	bannerError
)

type banner struct {
	kind bannerKind
	text string
	seq  int
}

// springValue is one animated scalar driven by a harmonica spring.
type springValue struct {
	pos float64
	vel float64
}

type deps struct {
	cfg       *config.Config
	client    *api.Client
	store     *history.Store
	logger    *log.Logger
	intervals session.Intervals
}

type model struct {
	width  int
	height int
	styles styles
	keys   keyMap
	help   help.Model
	spin   spinner.Model

	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	client *api.Client
	store  *history.Store

	tabs     *tabs.Registry
	subTabs  *tabs.Registry
	forms    map[string]*form
	editing  bool
	editor   textinput.Model
	events   chan session.Event
	monitors *session.Monitors
	states   map[session.Kind]session.State

	models        []api.Model
	datasets      []api.Dataset
	engines       *api.Engines
	training      *api.TrainingStatus
	cloud         *api.CloudStatus
	remote        *api.RemoteStatus
	transcription *api.TranscriptionStatus
	testResult    *api.TestVoiceResult
	textFileAck   *api.Ack
	upload        *api.UploadResult
	precheck      *checkMsg
	downloaded    *downloadMsg
	remoteReady   bool
	lossSeries    []float64
	busy          map[string]bool

	csvEditor  textarea.Model
	csvEditing bool
	csvResult  *csvcheck.Result
	csvPath    string

	logs        []string
	logView     viewport.Model
	historyRows []history.Entry

	banner    banner
	bannerSeq int

	spring       harmonica.Spring
	trainAnim    springValue
	exportAnim   springValue
	remoteAnim   springValue
	transAnim    springValue
	splashActive bool
	splashStart  time.Time
	splashMin    time.Duration
	splashProg   springValue
}

func newModel(d deps) model {
	ctx, cancel := context.WithCancel(context.Background())
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))

	ed := textinput.New()
	ed.CharLimit = 512
	ed.Width = 48

	ta := textarea.New()
	ta.Placeholder = "id|text or id|speaker|text, one utterance per line"
	ta.ShowLineNumbers = true
	ta.CharLimit = 0
	ta.SetWidth(80)
	ta.SetHeight(12)

	logVP := viewport.New(100, 16)
	logVP.SetContent("logs will appear here")

	m := model{
		styles:    defaultStyles(),
		keys:      defaultKeys(),
		help:      help.New(),
		spin:      sp,
		ctx:       ctx,
		cancel:    cancel,
		cfg:       d.cfg,
		client:    d.client,
		store:     d.store,
		editor:    ed,
		events:    make(chan session.Event, 256),
		states:    map[session.Kind]session.State{},
		busy:      map[string]bool{},
		csvEditor: ta,
		logView:   logVP,
		forms: map[string]*form{
			tabUpload:     uploadForm(""),
			tabTrain:      trainForm(),
			tabTest:       testForm(),
			tabExport:     exportForm(),
			tabMonitor:    monitorForm(),
			subTranscribe: transcribeForm(),
			subTextFile:   textFileForm(),
			subCSV:        csvForm(),
		},
		spring:       harmonica.NewSpring(harmonica.FPS(30), 6.0, 1.0),
		splashActive: true,
		splashStart:  time.Now(),
		splashMin:    1500 * time.Millisecond,
	}

	events := m.events
	notify := func(ev session.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	m.monitors = session.NewMonitors(d.client, d.intervals, notify, d.logger)

	c := d.client
	m.tabs = tabs.New().MustRegister(
		tabs.Tab{ID: tabUpload, Title: "Upload"},
		tabs.Tab{ID: tabTrain, Title: "Train"},
		tabs.Tab{ID: tabTest, Title: "Test", OnEnter: func() tea.Cmd { return loadModelsCmd(ctx, c) }},
		tabs.Tab{ID: tabExport, Title: "Export", OnEnter: func() tea.Cmd { return loadDatasetsCmd(ctx, c) }},
		tabs.Tab{ID: tabMonitor, Title: "Monitor"},
		tabs.Tab{ID: tabAutomation, Title: "Automation", OnEnter: func() tea.Cmd {
			return tea.Batch(loadEnginesCmd(ctx, c), loadModelsCmd(ctx, c), loadDatasetsCmd(ctx, c))
		}},
		tabs.Tab{ID: tabLogs, Title: "Logs"},
		tabs.Tab{ID: tabHistory, Title: "History", OnEnter: func() tea.Cmd { return loadHistoryCmd(ctx, d.store) }},
	)
	m.subTabs = tabs.New().MustRegister(
		tabs.Tab{ID: subTranscribe, Title: "Transcribe"},
		tabs.Tab{ID: subTextFile, Title: "Text File"},
		tabs.Tab{ID: subCSV, Title: "CSV Editor"},
	)

	m.appendLog("[system] console ready")
	m.appendLog("[system] api: " + d.client.BaseURL())
	if d.store == nil {
		m.appendLog("[system] history journal disabled")
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spin.Tick,
		waitEventCmd(m.events),
		animTickCmd(),
		probeTrainingCmd(m.ctx, m.client),
		loadDatasetsCmd(m.ctx, m.client),
		loadModelsCmd(m.ctx, m.client),
	)
}

func (m *model) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.logView.SetContent(strings.Join(m.logs, "\n"))
	m.logView.GotoBottom()
}

// setBanner shows text at the top. Success hides after 5s and info after
// 3s; errors stay until replaced.
func (m *model) setBanner(kind bannerKind, text string) tea.Cmd {
	m.bannerSeq++
	m.banner = banner{kind: kind, text: text, seq: m.bannerSeq}
	switch kind {
	case bannerSuccess:
		return bannerExpireCmd(5*time.Second, m.bannerSeq)
	case bannerInfo:
		return bannerExpireCmd(3*time.Second, m.bannerSeq)
	}
	return nil
}

// fail logs err and raises it as a sticky banner.
func (m *model) fail(what string, err error) tea.Cmd {
	m.appendLog(fmt.Sprintf("[api] %s failed: %v", what, err))
	return m.setBanner(bannerError, fmt.Sprintf("%s: %v", what, err))
}

func (m *model) activeTabID() string {
	return m.tabs.ActiveID()
}

// activeFormKey names the form shown on the current tab, "" if none.
func (m *model) activeFormKey() string {
	switch id := m.activeTabID(); id {
	case tabUpload, tabTrain, tabTest, tabExport, tabMonitor:
		return id
	case tabAutomation:
		return m.subTabs.ActiveID()
	}
	return ""
}

func (m *model) activeForm() *form {
	return m.forms[m.activeFormKey()]
}

func (m *model) startEdit() {
	f := m.activeForm()
	if f == nil {
		return
	}
	fd := f.selected()
	if fd == nil || fd.Type == fieldBool || fd.Type == fieldChoice {
		f.cycle()
		m.onCycled(fd)
		return
	}
	m.editing = true
	m.editor.SetValue(fd.Value)
	m.editor.Placeholder = fd.Label
	m.editor.Focus()
}

func (m *model) applyEdit() {
	if !m.editing {
		return
	}
	if fd := m.activeForm().selected(); fd != nil {
		fd.Value = strings.TrimSpace(m.editor.Value())
	}
	m.editing = false
	m.editor.Blur()
}

func (m *model) cancelEdit() {
	m.editing = false
	m.editor.Blur()
}

// onCycled applies the side effects of changing a choice.
func (m *model) onCycled(fd *cfgField) {
	if fd == nil {
		return
	}
	if m.activeFormKey() == tabExport && fd.Key == "quality" {
		m.forms[tabExport].set("epochs", fmt.Sprint(api.QualityEpochs(fd.Value)))
	}
}

// localDatasetDir is where the CSV editor keeps a dataset's metadata.csv.
func (m *model) localDatasetDir(name string) string {
	return filepath.Join(m.cfg.DataDir(), "datasets", name)
}

func (m *model) applyModels(ms []api.Model) {
	m.models = ms
	names := []string{}
	for _, md := range ms {
		if md.Testable() {
			names = append(names, md.Name)
		}
	}
	m.forms[tabTest].setChoices("model", names, "")
}

func (m *model) applyDatasets(ds []api.Dataset) {
	m.datasets = ds
	names := make([]string, 0, len(ds))
	for _, d := range ds {
		names = append(names, d.Name)
	}
	preferred := m.forms[tabTrain].value("model_name")
	for _, key := range []string{tabExport, subTranscribe, subTextFile, subCSV} {
		fieldKey := "model"
		if key == tabExport {
			fieldKey = "dataset"
		}
		m.forms[key].setChoices(fieldKey, names, preferred)
	}
}

func (m *model) applyEngines(e *api.Engines) {
	m.engines = e
	m.forms[subTranscribe].setChoices("engine", e.Engines, e.Default)
}

func (m *model) quit() tea.Cmd {
	m.monitors.StopAll()
	m.cancel()
	return tea.Quit
}
