package practice

import (
	"context"
	"strings"
	"time"

	"github.com/MrWong99/parley/internal/progress"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/scenario"
)

// StartRecording begins a voice turn. From turn-complete the session first
// advances to the next turn. Returns [ErrInputNotAllowed] in any status
// other than ready or turn-complete, or in text mode.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.textInput || !s.status.AcceptsInput() {
		s.mu.Unlock()
		return ErrInputNotAllowed
	}
	if s.status == StatusTurnComplete {
		s.proceedLocked()
	}
	s.transport.Reset()
	s.notice = ""
	if err := s.setStatusLocked(StatusListening); err != nil {
		s.mu.Unlock()
		return err
	}
	// Capture starts under the lock so Close cannot miss the stream.
	err := s.recorder.Start(s.ctx, func(f audio.AudioFrame) {
		s.transport.Send(f.Data)
	})
	snap, listeners := s.bumpLocked()
	s.mu.Unlock()
	s.publish(snap, listeners)

	if err != nil {
		s.fail(audioError("start recording", err))
		return err
	}
	return nil
}

// StopRecording ends the voice turn. After the transcription grace period
// the accumulated transcription is evaluated as the learner's reply.
func (s *Session) StopRecording() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.status != StatusListening {
		s.mu.Unlock()
		return ErrInputNotAllowed
	}
	err := s.setStatusLocked(StatusProcessing)
	snap, listeners := s.bumpLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(snap, listeners)

	if err := s.recorder.Stop(); err != nil {
		s.log.Warn("stop recorder", "err", err)
	}
	s.goAsync(func() {
		select {
		case <-time.After(s.deps.TranscriptionGrace):
		case <-s.ctx.Done():
			return
		}
		s.runTurn(s.ctx, s.transport.Snapshot())
	})
	return nil
}

// ToggleRecording stops an active recording or starts a new one.
func (s *Session) ToggleRecording() error {
	if s.Snapshot().Status == StatusListening {
		return s.StopRecording()
	}
	return s.StartRecording()
}

// SubmitText evaluates text as the learner's reply. It is accepted in both
// input modes from ready or turn-complete.
func (s *Session) SubmitText(text string) error {
	ok, err := s.update(func() error {
		if !s.status.AcceptsInput() {
			return ErrInputNotAllowed
		}
		if s.status == StatusTurnComplete {
			s.proceedLocked()
		}
		s.notice = ""
		return s.setStatusLocked(StatusProcessing)
	})
	if !ok {
		return ErrSessionClosed
	}
	if err != nil {
		return err
	}
	s.goAsync(func() { s.runTurn(s.ctx, text) })
	return nil
}

// Proceed leaves turn-complete for the next turn: feedback is cleared, the
// counter advances and the transcription buffer is reset.
func (s *Session) Proceed() error {
	ok, err := s.update(func() error {
		if s.status != StatusTurnComplete {
			return ErrInputNotAllowed
		}
		s.proceedLocked()
		return nil
	})
	if !ok {
		return ErrSessionClosed
	}
	return err
}

func (s *Session) proceedLocked() {
	s.feedback = nil
	if s.turn < s.sc.MaxTurns {
		s.turn++
	}
	s.transport.Reset()
	_ = s.setStatusLocked(StatusReady)
}

// UseTextInput switches the session to typed replies. Capture stops and the
// live channel is closed. From permission-denied the attempt resumes: with
// the opening line if it was never spoken, otherwise at ready.
func (s *Session) UseTextInput() error {
	var needOpening bool
	ok, err := s.update(func() error {
		switch {
		case s.status == StatusPermissionDenied:
			s.err = nil
			s.textInput = true
			if len(s.transcript) > 0 {
				return s.setStatusLocked(StatusReady)
			}
			needOpening = true
			return nil
		case s.status.AcceptsInput():
			s.textInput = true
			return nil
		default:
			return ErrInputNotAllowed
		}
	})
	if !ok {
		return ErrSessionClosed
	}
	if err != nil {
		return err
	}

	s.log.Info("switched to text input")
	if err := s.recorder.Stop(); err != nil {
		s.log.Warn("stop recorder", "err", err)
	}
	if err := s.transport.Close(); err != nil {
		s.log.Warn("close live channel", "err", err)
	}
	if needOpening {
		s.goAsync(func() { s.opening(s.ctx) })
	}
	return nil
}

// runTurn evaluates one learner reply. The session is in processing. Each
// step runs only while the session is still in the status the previous step
// left it in, so a failure or teardown during a remote call ends the turn.
func (s *Session) runTurn(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		s.clarify(ctx)
		return
	}

	var (
		lines []scenario.TranscriptLine
		final bool
	)
	if !s.advance(StatusProcessing, func() error {
		s.transcript = append(s.transcript, scenario.TranscriptLine{Speaker: scenario.SpeakerUser, Text: text})
		lines = append([]scenario.TranscriptLine(nil), s.transcript...)
		final = s.turn >= s.sc.MaxTurns
		return s.setStatusLocked(StatusEvaluating)
	}) {
		return
	}

	fb, err := s.deps.Coach.TurnFeedback(ctx, s.sc, lines, s.settings.Language)
	if !s.inStatus(StatusEvaluating) {
		return
	}
	if err != nil {
		s.fail(newError(KindRemoteCall, "turn feedback",
			"Unable to evaluate your response.", err))
		return
	}
	s.deps.Metrics.Turns.Add(ctx, 1)

	if final {
		s.finish(ctx, fb, lines)
		return
	}

	if !s.advance(StatusEvaluating, func() error {
		s.feedback = &fb
		return s.setStatusLocked(StatusSpeaking)
	}) {
		return
	}
	line, err := s.deps.Coach.NextLine(ctx, s.sc, lines, s.settings.Language, s.settings.Level)
	if !s.inStatus(StatusSpeaking) {
		return
	}
	if err != nil {
		s.fail(newError(KindRemoteCall, "coach reply",
			"Unable to continue the conversation.", err))
		return
	}
	if !s.advance(StatusSpeaking, func() error {
		s.transcript = append(s.transcript, scenario.TranscriptLine{Speaker: scenario.SpeakerCoach, Text: line})
		return nil
	}) {
		return
	}
	s.speak(ctx, line)
	s.advance(StatusSpeaking, func() error { return s.setStatusLocked(StatusTurnComplete) })
}

// finish runs the final assessment and records a pass with the ledger. The
// session is sealed before the ledger write, so a pass is recorded at most
// once and only for an attempt that then completes.
func (s *Session) finish(ctx context.Context, fb scenario.TurnFeedback, lines []scenario.TranscriptLine) {
	if !s.advance(StatusEvaluating, func() error {
		s.feedback = &fb
		return s.setStatusLocked(StatusAssessingFinal)
	}) {
		return
	}

	card, err := s.deps.Coach.FinalAssessment(ctx, s.sc, lines, s.settings.Language)
	if !s.inStatus(StatusAssessingFinal) {
		return
	}
	if err != nil {
		s.fail(newError(KindRemoteCall, "final assessment",
			"Failed to generate the final report.", err))
		return
	}
	if !s.seal(StatusAssessingFinal) {
		return
	}

	passed := card.Passed()
	var unlocked []progress.Achievement
	if passed && s.deps.Ledger != nil {
		unlocked, err = s.deps.Ledger.RecordCompletion(context.WithoutCancel(ctx), card, s.sc)
		if err != nil {
			s.log.Error("record completion", "err", err)
		}
	}
	s.deps.Metrics.RecordCompletion(ctx, passed)

	if s.advance(StatusAssessingFinal, func() error {
		s.scorecard = &card
		s.passed = passed
		s.achievements = unlocked
		return s.setStatusLocked(StatusScenarioComplete)
	}) {
		s.log.Info("scenario complete", "score", card.OverallScore, "passed", passed)
	}
}

// clarify handles a reply with no words: the turn is not consumed.
func (s *Session) clarify(ctx context.Context) {
	if !s.advance(StatusProcessing, func() error {
		s.notice = ClarifyLine
		return s.setStatusLocked(StatusSpeaking)
	}) {
		return
	}
	s.speak(ctx, ClarifyLine)
	s.advance(StatusSpeaking, func() error { return s.setStatusLocked(StatusReady) })
}
