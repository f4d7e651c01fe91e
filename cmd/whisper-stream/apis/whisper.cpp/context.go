package whisper

// #cgo linux LDFLAGS: -l:libwhisper.a -lm -lstdc++
// #cgo darwin LDFLAGS: -lwhisper -lstdc++ -framework Accelerate
// #include <whisper.h>
// #include <stdlib.h>
import "C"

import (
	"fmt"
	"log/slog"
	"os"
	"unsafe"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"
)

const maxThreads = 64

type Config struct {
	// The path to the GGML model file to use.
	ModelFile string
	// The number of system threads to use to perform the transcription.
	NumThreads int
	// 512 = a bit more than 10s. Use multiples of 64. Results in a speedup of 3x at 512, b/c whisper was tuned for 30s chunks. See: https://github.com/ggerganov/whisper.cpp/pull/141
	AudioContext int
	// Whether or not to print progress to stdout (default false).
	PrintProgress bool
	// Language to use (defaults to autodetection).
	Language string
	// Whether or not to generate a single segment (default false).
	SingleSegment bool
	// Skip timestamp generation.
	NoTimestamps bool
	// Maximum number of tokens per text segment, 0 means no limit.
	MaxTokens int
	// Beam search is used when greater than 1, greedy sampling otherwise.
	BeamSize int
	// Disable temperature fallback while decoding.
	NoFallback bool
	// Enable tinydiarize speaker turn detection (requires a tdrz model).
	TinyDiarize bool
	UseGPU      bool
	FlashAttn   bool
}

func (c Config) IsValid() error {
	if c == (Config{}) {
		return fmt.Errorf("invalid empty config")
	}

	if c.ModelFile == "" {
		return fmt.Errorf("invalid ModelFile: should not be empty")
	}

	if _, err := os.Stat(c.ModelFile); err != nil {
		return fmt.Errorf("invalid ModelFile: failed to stat model file: %w", err)
	}

	if c.NumThreads < 1 || c.NumThreads > maxThreads {
		return fmt.Errorf("invalid NumThreads: should be in the range [1, %d]", maxThreads)
	}

	if c.AudioContext < 0 {
		return fmt.Errorf("invalid AudioContext: should not be negative")
	}

	if c.MaxTokens < 0 {
		return fmt.Errorf("invalid MaxTokens: should not be negative")
	}

	if !IsKnownLanguage(c.Language) {
		return fmt.Errorf("invalid Language %q: unknown language", c.Language)
	}

	return nil
}

// IsKnownLanguage returns whether lang is empty, "auto" or a language code
// supported by whisper.
func IsKnownLanguage(lang string) bool {
	if lang == "" || lang == "auto" {
		return true
	}
	clang := C.CString(lang)
	defer C.free(unsafe.Pointer(clang))
	return C.whisper_lang_id(clang) != -1
}

// Context is a single whisper.cpp handle. It is not safe for concurrent
// use: the bilingual mode needs two of them.
type Context struct {
	cfg     Config
	ctx     *C.struct_whisper_context
	cparams C.struct_whisper_context_params
	params  C.struct_whisper_full_params

	multilingual bool
	lang         string
}

func NewContext(cfg Config) (*Context, error) {
	var c Context

	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	c.cfg = cfg

	slog.Debug("creating transcription context", slog.Any("cfg", cfg))

	path := C.CString(cfg.ModelFile)
	defer C.free(unsafe.Pointer(path))

	c.cparams = C.whisper_context_default_params()
	c.cparams.use_gpu = C.bool(cfg.UseGPU)
	c.cparams.flash_attn = C.bool(cfg.FlashAttn)
	c.ctx = C.whisper_init_from_file_with_params(path, c.cparams)
	if c.ctx == nil {
		return nil, fmt.Errorf("failed to load model file")
	}

	c.multilingual = C.whisper_is_multilingual(c.ctx) != 0

	if c.cfg.Language == "" {
		c.cfg.Language = "auto"
	}
	if !c.multilingual && c.cfg.Language != "en" {
		slog.Warn("model is not multilingual, ignoring language",
			slog.String("language", c.cfg.Language))
		c.cfg.Language = "en"
	}

	var strategy C.enum_whisper_sampling_strategy = C.WHISPER_SAMPLING_GREEDY
	if c.cfg.BeamSize > 1 {
		strategy = C.WHISPER_SAMPLING_BEAM_SEARCH
	}

	c.params = C.whisper_full_default_params(strategy)
	// Past transcription only reaches the decoder through Options.Prompt.
	c.params.no_context = C.bool(true)
	c.params.no_timestamps = C.bool(c.cfg.NoTimestamps)
	c.params.audio_ctx = C.int(c.cfg.AudioContext)
	c.params.n_threads = C.int(c.cfg.NumThreads)
	c.params.max_tokens = C.int(c.cfg.MaxTokens)
	c.params.language = C.CString(c.cfg.Language)
	c.params.single_segment = C.bool(c.cfg.SingleSegment)
	c.params.print_progress = C.bool(c.cfg.PrintProgress)
	c.params.print_realtime = C.bool(false)
	c.params.print_special = C.bool(false)
	c.params.print_timestamps = C.bool(false)
	c.params.tdrz_enable = C.bool(c.cfg.TinyDiarize)
	if c.cfg.BeamSize > 1 {
		c.params.beam_search.beam_size = C.int(c.cfg.BeamSize)
	}
	if c.cfg.NoFallback {
		c.params.temperature_inc = 0
	}

	return &c, nil
}

func (c *Context) Destroy() error {
	if c.ctx == nil {
		return fmt.Errorf("context is not initialized")
	}
	C.whisper_free(c.ctx)
	C.free(unsafe.Pointer(c.params.language))
	c.ctx = nil
	return nil
}

func (c *Context) IsMultilingual() bool {
	return c.multilingual
}

// Language returns the effective decoding language, which may differ from the
// configured one for English-only models.
func (c *Context) Language() string {
	return c.cfg.Language
}

// keepsContext reports whether the decoder carries text between calls on its
// own.
func (c *Context) keepsContext() bool {
	return !bool(c.params.no_context)
}

// DetectedLanguage returns the language reported by the last Transcribe call.
func (c *Context) DetectedLanguage() string {
	return c.lang
}

// Transcribe runs a full inference over samples (16kHz mono). Segment
// timestamps are returned in milliseconds.
func (c *Context) Transcribe(samples []float32, opts transcribe.Options) ([]transcribe.Segment, error) {
	if c.ctx == nil {
		return nil, fmt.Errorf("context is not initialized")
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("samples should not be empty")
	}

	params := c.params
	params.translate = C.bool(opts.Translate)

	if len(opts.Prompt) > 0 {
		size := C.size_t(len(opts.Prompt)) * C.size_t(unsafe.Sizeof(C.whisper_token(0)))
		ptr := (*C.whisper_token)(C.malloc(size))
		defer C.free(unsafe.Pointer(ptr))
		copy(unsafe.Slice(ptr, len(opts.Prompt)), unsafe.Slice((*C.whisper_token)(unsafe.Pointer(&opts.Prompt[0])), len(opts.Prompt)))
		params.prompt_tokens = ptr
		params.prompt_n_tokens = C.int(len(opts.Prompt))
	}

	ret := C.whisper_full(c.ctx, params, (*C.float)(&samples[0]), C.int(len(samples)))
	if ret != 0 {
		return nil, fmt.Errorf("whisper_full failed with code %d", ret)
	}

	c.lang = C.GoString(C.whisper_lang_str(C.whisper_full_lang_id(c.ctx)))

	eot := C.whisper_token_eot(c.ctx)

	n := int(C.whisper_full_n_segments(c.ctx))
	segments := make([]transcribe.Segment, n)
	for i := 0; i < n; i++ {
		ci := C.int(i)
		segments[i].Text = C.GoString(C.whisper_full_get_segment_text(c.ctx, ci))
		// whisper reports timestamps in 10ms ticks.
		segments[i].StartTS = int64(C.whisper_full_get_segment_t0(c.ctx, ci)) * 10
		segments[i].EndTS = int64(C.whisper_full_get_segment_t1(c.ctx, ci)) * 10
		segments[i].SpeakerTurn = bool(C.whisper_full_get_segment_speaker_turn_next(c.ctx, ci))

		nTokens := int(C.whisper_full_n_tokens(c.ctx, ci))
		segments[i].Tokens = make([]transcribe.Token, 0, nTokens)
		textTokens := make([]transcribe.Token, 0, nTokens)
		for j := 0; j < nTokens; j++ {
			cj := C.int(j)
			data := C.whisper_full_get_token_data(c.ctx, ci, cj)
			tk := transcribe.Token{
				ID:      int32(data.id),
				Text:    C.GoString(C.whisper_full_get_token_text(c.ctx, ci, cj)),
				P:       float32(data.p),
				Special: data.id >= eot,
			}
			segments[i].Tokens = append(segments[i].Tokens, tk)
			if !tk.Special {
				textTokens = append(textTokens, tk)
			}
		}
		segments[i].Confidence = transcribe.MeanTokenP(textTokens)
	}

	return segments, nil
}
