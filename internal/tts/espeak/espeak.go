// Package espeak is a tts.Engine backed by libespeak-ng.
package espeak

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <espeak-ng/speak_lib.h>

static int
voxgit_espeak_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0);
}

static int
voxgit_espeak_say(const char *text, const char *voice, int rate, int pitch)
{
	if (!text)
	{ return -1; }

	if (voice && *voice && espeak_SetVoiceByName(voice) != EE_OK)
	{ return -2; }
	if (rate > 0)
	{ espeak_SetParameter(espeakRATE, rate, 0); }
	if (pitch > 0)
	{ espeak_SetParameter(espeakPITCH, pitch, 0); }

	if (espeak_Synth(text, 0, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -3; }
	espeak_Synchronize();
	return 0;
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"voxgit/internal/tts"
)

var ErrInit = errors.New("espeak: initialization failed")

// Engine is safe for concurrent use; utterances are serialized because the
// library keeps global state.
type Engine struct {
	mu sync.Mutex
}

var initOnce = sync.OnceValue(func() error {
	if C.voxgit_espeak_init() < 0 {
		return ErrInit
	}
	return nil
})

func New() (*Engine, error) {
	if err := initOnce(); err != nil {
		return nil, err
	}
	return &Engine{}, nil
}

func (e *Engine) Speak(ctx context.Context, text string, p tts.VoiceParams) error {
	if text == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	cvoice := C.CString(p.Voice)
	defer C.free(unsafe.Pointer(cvoice))

	// Synchronous playback blocks in C; cancellation interrupts it from here.
	stop := context.AfterFunc(ctx, func() { C.espeak_Cancel() })
	defer stop()

	rc := C.voxgit_espeak_say(ctext, cvoice, C.int(p.Rate), C.int(p.Pitch))
	if rc != 0 && ctx.Err() == nil {
		return fmt.Errorf("espeak: say failed: %d", int(rc))
	}
	return nil
}

var _ tts.Engine = (*Engine)(nil)
