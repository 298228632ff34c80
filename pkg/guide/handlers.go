package guide

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-wayfinder/pkg/detection"
	"github.com/teslashibe/go-wayfinder/pkg/dialogue"
	"github.com/teslashibe/go-wayfinder/pkg/mic"
	"github.com/teslashibe/go-wayfinder/pkg/perception"
	"github.com/teslashibe/go-wayfinder/pkg/signage"
	"github.com/teslashibe/go-wayfinder/pkg/speech"
)

const wrongDirectionKey = "wrong_direction"

func (s *Session) say(ctx context.Context, req speech.Request) bool {
	ok := s.arbiter.Speak(ctx, req)
	attrs := metric.WithAttributes(attribute.String("kind", req.Kind.String()))
	if ok {
		s.inst.spoken.Add(ctx, 1, attrs)
	} else if strings.TrimSpace(req.Text) != "" {
		s.inst.suppressed.Add(ctx, 1, attrs)
	}
	return ok
}

func (s *Session) applyFrame(ctx context.Context, f Frame) {
	if f.Seq != 0 {
		if last, ok := s.lastSeq[f.Source]; ok && f.Seq <= last {
			s.inst.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "out_of_order")))
			s.logger.Debug("dropping out-of-order frame", "source", f.Source, "seq", f.Seq, "last", last)
			return
		}
		s.lastSeq[f.Source] = f.Seq
	}
	s.frameSeq = f.Seq
	s.framesApplied++

	w, h := f.Width, f.Height
	if w <= 0 || h <= 0 {
		w, h = detection.ModelSize, detection.ModelSize
	}
	results := s.engine.Analyze(f.Detections, w, h)
	s.best, s.hasBest = s.engine.SelectBest(results)

	st := s.machine.State()
	if !st.GuidanceEnabled {
		return
	}
	if s.hasBest && s.best.Confidence >= s.cfg.MinConfidence {
		if phrase := s.vocab.Phrase(s.best); phrase != "" {
			s.say(ctx, speech.Request{
				Text: phrase,
				Kind: speech.Perception,
				Key:  speech.PerceptionKey(s.best.Label, s.best.Position.String(), s.best.Distance.String()),
			})
		}
	}
	if f.Image != nil {
		s.startSignage(ctx, results, st, f)
	}
}

// startSignage runs an OCR pass off the loop when one is due. The report
// comes back as an event.
func (s *Session) startSignage(ctx context.Context, results []perception.Result, st dialogue.State, f Frame) {
	pass, ok := s.validator.Begin(results, st.Origin, st.Destination, f.Image)
	if !ok {
		return
	}

	s.passes.Add(1)
	go func() {
		defer s.passes.Done()

		ctx, span := tracer.Start(ctx, "signage pass", trace.WithAttributes(
			attribute.Int("signage.signs", len(pass.Signs)),
			attribute.String("signage.expected", pass.Expected.Name),
			attribute.Int64("frame.seq", int64(f.Seq)),
		))
		rep := pass.Run(ctx, s.reader)
		span.SetAttributes(
			attribute.Int("signage.read", rep.SignsRead),
			attribute.Int("signage.directions", rep.DirectionsSeen),
			attribute.Bool("signage.matched", rep.Matched),
		)
		span.End()

		if err := s.post(func(ctx context.Context) { s.finishSignage(ctx, rep) }); err != nil {
			s.logger.Debug("signage report discarded", "error", err)
		}
	}()
}

func (s *Session) finishSignage(ctx context.Context, rep signage.Report) {
	out, ok := s.validator.Finish(rep)
	if !ok || !s.machine.State().GuidanceEnabled {
		return
	}
	key := speech.NavigationKey(wrongDirectionKey)
	if out.Navigation {
		key = speech.NavigationKey(out.Instruction.Type.String())
	}
	s.say(ctx, speech.Request{Text: out.Phrase, Kind: speech.Navigation, Key: key})
}

func (s *Session) handleFinal(ctx context.Context, texts []string, confidences []float64) {
	s.arbiter.RecognitionEnded()

	text := strings.TrimSpace(dialogue.PickAlternative(texts, confidences))
	s.recognized = text
	if text == "" {
		s.resumeListening()
		return
	}

	before := s.machine.State()
	res := s.machine.Handle(text)
	after := s.machine.State()
	s.inst.utterances.Add(ctx, 1, metric.WithAttributes(
		attribute.String("intent", res.Intent),
		attribute.Bool("understood", res.Understood),
	))
	s.logger.Info("utterance handled", "text", text, "intent", res.Intent, "understood", res.Understood)

	s.engine.SetTarget(after.ObjectSought)
	if before.Origin != after.Origin || before.Destination != after.Destination {
		s.validator.ResetInstruction()
	}

	response := res.Response
	if res.Describe {
		response = s.describe(response)
	}
	if res.ReleaseMic {
		s.arbiter.SetContinuous(false)
	}

	spoken := s.say(ctx, speech.Request{Text: response, Kind: speech.Dialogue})

	if res.ReleaseMic {
		s.arbiter.AfterSpeech(func() {
			s.arbiter.StopListening()
			s.mic.Release(s.owner)
		})
	}
	if res.SwitchToVision {
		s.arbiter.AfterSpeech(func() {
			s.switchToVision = true
			s.enterView(Vision)
		})
	}
	if !spoken {
		s.resumeListening()
	}
}

// describe appends what the camera currently sees to response.
func (s *Session) describe(response string) string {
	if !s.hasBest {
		return response + " I don't see anything nearby."
	}
	phrase := s.vocab.Phrase(s.best)
	if phrase == "" {
		phrase = perception.FormatPhrase(s.best)
	}
	return response + " I see " + phrase
}

func (s *Session) resumeListening() {
	if s.arbiter.Continuous() && !s.arbiter.Speaking() {
		s.arbiter.ScheduleRestart(s.cfg.Speech.RestartDelay)
	}
}

func (s *Session) handleRecognitionError(err error) {
	s.arbiter.RecognitionEnded()
	s.recognized = ""
	s.logger.Warn("recognition error", "error", err)
	if s.arbiter.Continuous() && !s.arbiter.Speaking() {
		s.arbiter.ScheduleRestart(s.cfg.Speech.ErrorRestartDelay)
	}
}

func (s *Session) handleUnavailable(ctx context.Context) {
	s.arbiter.RecognitionEnded()
	s.arbiter.SetContinuous(false)
	if s.unavailable {
		return
	}
	s.unavailable = true
	s.notice = NoticeRecognitionUnavailable
	s.logger.Warn("speech recognition unavailable")
	s.say(ctx, speech.Request{Text: NoticeRecognitionUnavailable, Kind: speech.Dialogue})
}

func (s *Session) startDialogue() {
	s.arbiter.SetContinuous(true)
	s.mic.Acquire(s.owner)
	if err := s.arbiter.StartListening(); err != nil {
		s.logger.Warn("cannot start listening", "error", err)
		if s.unavailable {
			s.arbiter.SetContinuous(false)
		}
	}
}

func (s *Session) stopDialogue() {
	s.arbiter.SetContinuous(false)
	s.arbiter.StopListening()
	s.mic.Release(s.owner)
}

// enterView moves the microphone to the flow of v. The previous owner is
// revoked and listening resumes under the new owner if it was continuous.
func (s *Session) enterView(v View) {
	if v == Home {
		s.switchToVision = false
	}
	if s.view == v {
		return
	}
	s.arbiter.StopListening()
	s.view = v
	s.owner = mic.HomeDialogue
	if v == Vision {
		s.owner = mic.VisionTest
	}
	if prev := s.mic.Acquire(s.owner); prev != mic.None {
		s.logger.Info("microphone revoked", "from", prev.String(), "to", s.owner.String())
	}
	s.resumeListening()
}
