package main

import (
	"fmt"
	"strconv"
	"strings"

	"piper-console/pkg/api"
)

type fieldType int

const (
	fieldString fieldType = iota
	fieldInt
	fieldBool
	fieldChoice
)

type cfgField struct {
	Key     string
	Label   string
	Type    fieldType
	Value   string
	Desc    string
	Choices []string
}

// form is an ordered list of fields with one of them selected.
type form struct {
	fields []cfgField
	idx    int
}

func newForm(fields ...cfgField) *form {
	return &form{fields: fields}
}

func (f *form) selected() *cfgField {
	if len(f.fields) == 0 {
		return nil
	}
	return &f.fields[f.idx]
}

func (f *form) move(delta int) {
	f.idx = max(0, min(len(f.fields)-1, f.idx+delta))
}

func (f *form) field(key string) *cfgField {
	for i := range f.fields {
		if f.fields[i].Key == key {
			return &f.fields[i]
		}
	}
	return nil
}

func (f *form) value(key string) string {
	if fd := f.field(key); fd != nil {
		return strings.TrimSpace(fd.Value)
	}
	return ""
}

func (f *form) set(key, value string) {
	if fd := f.field(key); fd != nil {
		fd.Value = value
	}
}

func (f *form) boolValue(key string) bool {
	return strings.EqualFold(f.value(key), "true")
}

func (f *form) intValue(key string, minV int) (int, error) {
	n, err := strconv.Atoi(f.value(key))
	if err != nil || n < minV {
		return 0, fmt.Errorf("%s must be an integer >= %d", key, minV)
	}
	return n, nil
}

func (f *form) require(keys ...string) error {
	for _, k := range keys {
		if f.value(k) == "" {
			return fmt.Errorf("%s cannot be empty", k)
		}
	}
	return nil
}

// cycle advances the selected bool or choice field.
func (f *form) cycle() {
	fd := f.selected()
	if fd == nil {
		return
	}
	switch fd.Type {
	case fieldBool:
		if strings.EqualFold(fd.Value, "true") {
			fd.Value = "false"
		} else {
			fd.Value = "true"
		}
	case fieldChoice:
		if len(fd.Choices) == 0 {
			return
		}
		idx := -1
		for j, c := range fd.Choices {
			if c == fd.Value {
				idx = j
				break
			}
		}
		fd.Value = fd.Choices[(idx+1)%len(fd.Choices)]
	}
}

// setChoices replaces a choice list, keeping the current value when it is
// still offered and falling back to preferred, then to the first choice.
func (f *form) setChoices(key string, choices []string, preferred string) {
	fd := f.field(key)
	if fd == nil {
		return
	}
	fd.Choices = choices
	for _, c := range choices {
		if c == fd.Value {
			return
		}
	}
	for _, c := range choices {
		if c == preferred {
			fd.Value = c
			return
		}
	}
	if len(choices) > 0 {
		fd.Value = choices[0]
	} else {
		fd.Value = ""
	}
}

func uploadForm(defaultAudioDir string) *form {
	return newForm(
		cfgField{Key: "model_name", Label: "Model name", Type: fieldString, Value: "", Desc: "Dataset name on the server (training_data/<name>)."},
		cfgField{Key: "audio_dir", Label: "Audio directory", Type: fieldString, Value: defaultAudioDir, Desc: "Local directory with .wav/.mp3/.flac clips."},
		cfgField{Key: "metadata_file", Label: "Metadata file", Type: fieldString, Desc: "Local metadata.csv (id|text or id|speaker|text). Optional."},
	)
}

func trainForm() *form {
	return newForm(
		cfgField{Key: "model_name", Label: "Model name", Type: fieldString, Desc: "Uploaded dataset to train on."},
		cfgField{Key: "language", Label: "Language", Type: fieldChoice, Value: "pt-br", Choices: []string{"pt-br", "en-us", "es", "fr", "de", "it"}, Desc: "eSpeak voice used for phonemes."},
		cfgField{Key: "quality", Label: "Quality", Type: fieldChoice, Value: "medium", Choices: api.Qualities(), Desc: "low=50, medium=100, high=200 epochs."},
		cfgField{Key: "sample_rate", Label: "Sample rate", Type: fieldChoice, Value: "22050", Choices: []string{"16000", "22050"}, Desc: "Audio sample rate in Hz."},
		cfgField{Key: "single_speaker", Label: "Single speaker", Type: fieldBool, Value: "true", Desc: "false trains a multi-speaker voice (id|speaker|text)."},
	)
}

func testForm() *form {
	return newForm(
		cfgField{Key: "model", Label: "Model", Type: fieldChoice, Desc: "Only models with both .onnx and .onnx.json are listed."},
		cfgField{Key: "text", Label: "Text", Type: fieldString, Value: "This is a test of the trained voice.", Desc: "Sentence to synthesize."},
	)
}

func exportForm() *form {
	return newForm(
		cfgField{Key: "dataset", Label: "Dataset", Type: fieldChoice, Desc: "Dataset to package for cloud training."},
		cfgField{Key: "platform", Label: "Platform", Type: fieldChoice, Value: "colab", Choices: []string{"colab", "kaggle", "paperspace"}, Desc: "Notebook platform for the package."},
		cfgField{Key: "quality", Label: "Quality", Type: fieldChoice, Value: "medium", Choices: api.Qualities(), Desc: "Cycling quality resets epochs to its preset."},
		cfgField{Key: "epochs", Label: "Epochs", Type: fieldInt, Value: "100", Desc: "Training epochs in the cloud."},
		cfgField{Key: "auto_download", Label: "Auto download", Type: fieldBool, Value: "false", Desc: "Download the package when the export completes."},
	)
}

func monitorForm() *form {
	return newForm(
		cfgField{Key: "platform", Label: "Platform", Type: fieldChoice, Value: "colab", Choices: []string{"colab", "kaggle", "paperspace"}, Desc: "Where the remote run executes."},
		cfgField{Key: "session_id", Label: "Session id", Type: fieldString, Desc: "Remote session id. Empty generates one."},
		cfgField{Key: "notebook_url", Label: "Notebook URL", Type: fieldString, Desc: "Notebook serving the trained model under /download."},
		cfgField{Key: "model_name", Label: "Model name", Type: fieldString, Desc: "Name of the model being trained remotely."},
	)
}

func transcribeForm() *form {
	return newForm(
		cfgField{Key: "model", Label: "Dataset", Type: fieldChoice, Desc: "Dataset whose wav/ clips are transcribed."},
		cfgField{Key: "engine", Label: "Engine", Type: fieldChoice, Value: "whisper", Choices: []string{"whisper"}, Desc: "Speech recognition engine."},
		cfgField{Key: "language", Label: "Language", Type: fieldString, Value: "pt", Desc: "Language code for recognition."},
	)
}

func textFileForm() *form {
	return newForm(
		cfgField{Key: "model", Label: "Dataset", Type: fieldChoice, Desc: "Dataset whose clips the lines are paired with."},
		cfgField{Key: "text_file", Label: "Text file", Type: fieldString, Desc: "Local .txt, one utterance per line, in clip order."},
	)
}

func csvForm() *form {
	return newForm(
		cfgField{Key: "model", Label: "Dataset", Type: fieldChoice, Desc: "Target dataset for the edited metadata.csv."},
	)
}

func trainingRequest(f *form) (api.TrainingRequest, error) {
	if err := f.require("model_name"); err != nil {
		return api.TrainingRequest{}, err
	}
	sr, err := f.intValue("sample_rate", 8000)
	if err != nil {
		return api.TrainingRequest{}, err
	}
	q := f.value("quality")
	if !oneOf(q, api.Qualities()) {
		return api.TrainingRequest{}, fmt.Errorf("quality must be low, medium or high")
	}
	return api.TrainingRequest{
		ModelName:     f.value("model_name"),
		Language:      f.value("language"),
		Quality:       q,
		SampleRate:    sr,
		SingleSpeaker: f.boolValue("single_speaker"),
	}, nil
}

func exportRequest(f *form) (api.ExportRequest, error) {
	if err := f.require("dataset", "platform"); err != nil {
		return api.ExportRequest{}, err
	}
	epochs, err := f.intValue("epochs", 1)
	if err != nil {
		return api.ExportRequest{}, err
	}
	return api.ExportRequest{
		DatasetName:  f.value("dataset"),
		Platform:     f.value("platform"),
		Quality:      f.value("quality"),
		Epochs:       epochs,
		AutoDownload: f.boolValue("auto_download"),
	}, nil
}

func transcriptionRequest(f *form) (api.TranscriptionRequest, error) {
	if err := f.require("model", "engine"); err != nil {
		return api.TranscriptionRequest{}, err
	}
	return api.TranscriptionRequest{
		ModelName: f.value("model"),
		Engine:    f.value("engine"),
		Language:  nz(f.value("language"), "pt"),
	}, nil
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
