package escalate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/share4life/blood-core/internal/blood"
	"github.com/share4life/blood-core/internal/notify"
)

// RunTick processes every escalatable request once. Requests are independent
// units of work; a failure in one is recorded and the batch continues.
func (e *Engine) RunTick(ctx context.Context) TickResult {
	start := e.Now()
	var result TickResult

	reqs, err := e.Store.EscalatableRequests(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.Duration = time.Since(start)
		return result
	}

	result.RequestsSeen = len(reqs)
	if len(reqs) == 0 {
		result.Duration = time.Since(start)
		return result
	}

	workers := e.Cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(reqs) {
		workers = len(reqs)
	}

	ch := make(chan blood.Request, len(reqs))
	for _, r := range reqs {
		ch <- r
	}
	close(ch)

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range ch {
				outcome, err := e.runOne(ctx, &req)

				mu.Lock()
				switch {
				case err != nil:
					// Skipped for this tick; state was not advanced, so the
					// next tick naturally retries the same stage.
					result.Errors = append(result.Errors,
						fmt.Sprintf("request %s: %s", req.ID, err))
					e.Logger.Warn("escalation tick failed for request",
						"request_id", req.ID, "error", err)
				case outcome == outcomeAdvanced:
					result.Advanced++
				case outcome == outcomeTerminated:
					result.Terminated++
				default:
					result.Skipped++
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	result.Duration = time.Since(start)

	e.Logger.Info("Escalation tick complete", "summary", result.Summary())
	return result
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeAdvanced
	outcomeTerminated
)

// runOne evaluates the state machine for a single request.
func (e *Engine) runOne(ctx context.Context, req *blood.Request) (outcome, error) {
	now := e.Now()

	st, err := e.Store.GetOrCreateState(ctx, req.ID, now)
	if err != nil {
		return outcomeSkipped, err
	}

	if st.IsDone {
		return outcomeSkipped, nil
	}
	if st.NextRunAt != nil && st.NextRunAt.After(now) {
		return outcomeSkipped, nil
	}

	// Termination checks run before any stage logic, re-evaluated from
	// storage every tick rather than cached.
	done, err := e.shouldTerminate(ctx, req, now)
	if err != nil {
		return outcomeSkipped, err
	}
	if done {
		st.Finish()
		st.LastRunAt = &now
		if err := e.Store.SaveState(ctx, st); err != nil {
			return outcomeSkipped, err
		}
		return outcomeTerminated, nil
	}

	if err := e.advanceStage(ctx, req, st, now); err != nil {
		return outcomeSkipped, err
	}

	st.LastRunAt = &now
	if err := e.Store.SaveState(ctx, st); err != nil {
		return outcomeSkipped, err
	}

	if st.IsDone {
		return outcomeTerminated, nil
	}
	return outcomeAdvanced, nil
}

// shouldTerminate checks the stop conditions: donor accepted, donation
// recorded, request inactive or closed, or escalation window exceeded.
// Window expiry stops the state machine without closing the request.
func (e *Engine) shouldTerminate(ctx context.Context, req *blood.Request, now time.Time) (bool, error) {
	if !req.IsActive || req.Status == blood.RequestFulfilled || req.Status == blood.RequestCancelled {
		return true, nil
	}

	accepted, err := e.Store.HasAcceptedResponse(ctx, req.ID)
	if err != nil {
		return false, err
	}
	if accepted {
		return true, nil
	}

	donated, err := e.Store.HasAnyDonation(ctx, req.ID)
	if err != nil {
		return false, err
	}
	if donated {
		return true, nil
	}

	maxWindow := e.Cfg.MaxWindow
	if maxWindow <= 0 {
		maxWindow = DefaultMaxWindow
	}
	if now.Sub(req.CreatedAt) > maxWindow {
		return true, nil
	}

	return false, nil
}

// advanceStage executes one hop of the stage transition table.
func (e *Engine) advanceStage(ctx context.Context, req *blood.Request, st *blood.EscalationState, now time.Time) error {
	hasGPS := req.HasGPS()

	switch st.Stage {
	case blood.StageCity:
		if hasGPS {
			sent, err := e.Pinger.SendStage(ctx, req, blood.StageRadius5)
			if err != nil {
				return err
			}
			st.Stage = blood.StageRadius5
			st.ScheduleNext(now, e.stageInterval())

			if sent > 0 {
				e.notifyRequester(ctx, req,
					"Emergency escalation started",
					"We are now alerting donors within 5km.",
					notify.LevelInfo)
			} else {
				e.notifyRequester(ctx, req,
					"Emergency escalation update",
					"No nearby GPS donors found within 5km yet. We will expand further.",
					notify.LevelWarning)
			}
		} else {
			st.Stage = blood.StageOrg
			st.ScheduleNext(now, e.stageInterval())
			e.notifyRequester(ctx, req,
				"Emergency escalation started",
				"GPS not available. We will notify nearby institutions in your city.",
				notify.LevelInfo)
		}

	case blood.StageRadius5:
		if hasGPS {
			sent, err := e.Pinger.SendStage(ctx, req, blood.StageRadius10)
			if err != nil {
				return err
			}
			st.Stage = blood.StageRadius10
			st.ScheduleNext(now, e.stageInterval())

			if sent > 0 {
				e.notifyRequester(ctx, req,
					"Emergency escalation update",
					"We are now alerting donors within 10km.",
					notify.LevelInfo)
			} else {
				e.notifyRequester(ctx, req,
					"Emergency escalation update",
					"No GPS donors found within 10km yet. We will notify institutions next.",
					notify.LevelWarning)
			}
		} else {
			st.Stage = blood.StageOrg
			st.ScheduleNext(now, e.stageInterval())
		}

	case blood.StageRadius10:
		// Re-ping the 10km scope so donors who came online since the last
		// hop still get alerted before the handoff to institutions.
		if hasGPS {
			if _, err := e.Pinger.SendStage(ctx, req, blood.StageRadius10); err != nil {
				return err
			}
		}
		st.Stage = blood.StageOrg
		st.ScheduleNext(now, e.stageInterval())

	case blood.StageOrg:
		notified, err := e.Orgs.NotifyCityOrgs(ctx, req.City,
			"Emergency blood request needs attention",
			fmt.Sprintf("Emergency request for %s blood at %s needs verification/routing help.",
				req.BloodGroup, req.HospitalName),
			req.DetailURL())
		if err != nil {
			return err
		}
		if notified == 0 {
			e.Logger.Info("No organization members to notify",
				"request_id", req.ID, "city", req.City)
		}
		st.Stage = blood.StageLoop
		st.ScheduleNext(now, e.loopInterval())

	case blood.StageLoop:
		// Open-ended reping until a termination check fires. City scope
		// catches donors who were offline earlier; the 10km scope covers
		// GPS movers.
		if _, err := e.Pinger.SendStage(ctx, req, blood.StageCity); err != nil {
			return err
		}
		if hasGPS {
			if _, err := e.Pinger.SendStage(ctx, req, blood.StageRadius10); err != nil {
				return err
			}
		}
		st.ScheduleNext(now, e.loopInterval())

	default:
		st.Finish()
	}

	return nil
}

// notifyRequester informs the request creator of a routing decision.
// Guest requests have no creator and are skipped. Notification failures are
// logged, not propagated; stage advancement does not depend on them.
func (e *Engine) notifyRequester(ctx context.Context, req *blood.Request, title, body, level string) {
	if req.CreatedBy == nil || e.Sink == nil {
		return
	}
	if err := e.Sink.Notify(ctx, *req.CreatedBy, title, body, req.DetailURL(), level); err != nil {
		e.Logger.Warn("requester notification failed",
			"request_id", req.ID, "error", err)
	}
}

func (e *Engine) stageInterval() time.Duration {
	if e.Cfg.StageInterval <= 0 {
		return DefaultStageInterval
	}
	return e.Cfg.StageInterval
}

func (e *Engine) loopInterval() time.Duration {
	if e.Cfg.LoopInterval <= 0 {
		return DefaultLoopInterval
	}
	return e.Cfg.LoopInterval
}
