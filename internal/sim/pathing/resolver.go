package pathing

import (
	"errors"

	"github.com/sirupsen/logrus"

	"pathcraft.ai/internal/logging"
	"pathcraft.ai/internal/sim/mathx"
	"pathcraft.ai/internal/sim/nav"
)

// ResolverEnv is the entity store as seen by the resolver.
type ResolverEnv interface {
	EntityExists(id EntityID) bool
	InstallPath(id EntityID, path []mathx.Vec3)
}

// Resolver applies finished queries to entities. The newest dispatched request
// per owner wins; results of older requests are discarded. All methods run on
// the tick goroutine.
type Resolver struct {
	env    ResolverEnv
	log    *logrus.Entry
	latest map[EntityID]uint64
}

func NewResolver(env ResolverEnv, log *logrus.Entry) *Resolver {
	if log == nil {
		log = logging.Component(nil, "resolver")
	}
	return &Resolver{env: env, log: log, latest: map[EntityID]uint64{}}
}

// Issue returns the sequence number for a new request by owner.
func (r *Resolver) Issue(owner EntityID) uint64 {
	r.latest[owner]++
	return r.latest[owner]
}

func (r *Resolver) Latest(owner EntityID) uint64 { return r.latest[owner] }

// Forget drops sequence tracking for an entity that left.
func (r *Resolver) Forget(owner EntityID) { delete(r.latest, owner) }

func (r *Resolver) Resolve(c Completion) Resolution {
	res := Resolution{Owner: c.Owner, Seq: c.Seq}
	fields := logrus.Fields{"owner": c.Owner, "seq": c.Seq}

	if !r.env.EntityExists(c.Owner) {
		res.Outcome = OutcomeMissingOwner
		r.log.WithFields(fields).Debug("path result for missing entity discarded")
		return res
	}

	if c.Err != nil {
		res.Error = c.Err.Error()
		switch {
		case errors.Is(c.Err, nav.ErrSnapshotUnavailable):
			res.Outcome = OutcomeSnapshotUnavailable
		case errors.Is(c.Err, ErrExpired):
			res.Outcome = OutcomeExpired
		default:
			res.Outcome = OutcomeNoPath
		}
		entry := r.log.WithFields(fields).WithError(c.Err)
		if c.Seq < r.latest[c.Owner] {
			entry.WithField("latest", r.latest[c.Owner]).Trace("superseded path query failed")
		} else {
			entry.Warn("path query failed")
		}
		return res
	}

	if c.Seq < r.latest[c.Owner] {
		res.Outcome = OutcomeStale
		r.log.WithFields(fields).WithField("latest", r.latest[c.Owner]).Trace("stale path result discarded")
		return res
	}

	// The first waypoint is the query start; the entity is already there.
	rest := make([]mathx.Vec3, 0, len(c.Path))
	if len(c.Path) > 1 {
		rest = append(rest, c.Path[1:]...)
	}
	r.env.InstallPath(c.Owner, rest)
	res.Outcome = OutcomeApplied
	res.Path = rest
	r.log.WithFields(fields).WithField("waypoints", len(rest)).Debug("path installed")
	return res
}
