package render

import (
	"context"
	"errors"
	"sort"
)

// PoseOracle is the physics/collision simulator boundary. It advances world
// state one step at a time and exposes object poses and its own rasterized
// foreground view. It must never return partially-populated poses; objects
// it cannot pose are omitted from the TransformUpdate entirely.
type PoseOracle interface {
	// Step advances the simulation by exactly one physics step.
	Step(ctx context.Context) error

	// Transforms returns the full pose snapshot for the most recent step.
	Transforms() (TransformUpdate, error)

	// RenderForeground rasterizes the dynamic actors (robot, manipulated
	// objects) from the given camera, along with the per-pixel ownership
	// mask identifying which pixels those actors cover.
	RenderForeground(ctx context.Context, camera CameraPose) (*RenderLayer, *OwnershipMask, error)
}

// SplatRenderer is the point-based photorealistic renderer boundary. It
// retains per-object transforms across calls; only the Synchronizer mutates
// that table, and only the renderer's own Render call reads it.
type SplatRenderer interface {
	// SetObjectTransform repositions one scene object. Unknown identities
	// must be rejected with ErrUnknownObject, not by failing the next
	// render call.
	SetObjectTransform(id ObjectIdentity, pose Pose) error

	// Render produces the photorealistic background from the given camera
	// using the current per-object transforms.
	Render(ctx context.Context, camera CameraPose) (*RenderLayer, error)
}

// SyncResult summarizes one synchronization pass.
type SyncResult struct {
	// Applied counts objects whose transforms reached the splat renderer.
	Applied int
	// SkippedUnmapped counts simulated objects with no splat counterpart.
	// Not an error: those objects render mesh-only in the foreground layer.
	SkippedUnmapped int
	// Warnings counts mapped objects the renderer rejected (unknown object,
	// malformed pose). One bad object never aborts the rest of the update.
	Warnings int
	// WarnedObjects lists the simulator names behind Warnings.
	WarnedObjects []ObjectIdentity
}

// Synchronizer pushes per-step pose snapshots from the pose oracle into the
// splat renderer, translating object identities on the way. It is the only
// component that mutates the renderer's transform table, which keeps the two
// scene representations from drifting apart in hidden, order-dependent ways.
type Synchronizer struct {
	renderer SplatRenderer
	ids      *IdentityMap
}

// NewSynchronizer creates a Synchronizer over the given renderer and
// identity mapping. The mapping is immutable for the life of the episode.
func NewSynchronizer(renderer SplatRenderer, ids *IdentityMap) *Synchronizer {
	return &Synchronizer{renderer: renderer, ids: ids}
}

// Apply pushes the full TransformUpdate into the splat renderer so its next
// render reflects current object poses. The update is whole-replacement: every
// mapped object present in the snapshot is re-applied, and nothing stale is
// retained on our side between frames.
//
// Failures are strictly local: an unmapped object is silently skipped, and a
// renderer rejection or malformed pose is logged and counted while the
// remaining objects are still applied.
func (s *Synchronizer) Apply(update TransformUpdate) SyncResult {
	var res SyncResult
	for _, sim := range sortedKeys(update) {
		splatID, ok := s.ids.Lookup(sim)
		if !ok {
			res.SkippedUnmapped++
			continue
		}
		pose := update[sim].Normalize()
		if err := pose.Validate(); err != nil {
			diagf("[Sync] Skipping %q: %v", sim, err)
			res.Warnings++
			res.WarnedObjects = append(res.WarnedObjects, sim)
			continue
		}
		if err := s.renderer.SetObjectTransform(splatID, pose); err != nil {
			if !errors.Is(err, ErrUnknownObject) && !errors.Is(err, ErrMalformedPose) {
				// Still a per-object warning: the contract is that one bad
				// object must not abort synchronization of the others.
				opsf("[Sync] Unexpected renderer error for %q (%q): %v", sim, splatID, err)
			} else {
				diagf("[Sync] Renderer rejected %q (%q): %v", sim, splatID, err)
			}
			res.Warnings++
			res.WarnedObjects = append(res.WarnedObjects, sim)
			continue
		}
		res.Applied++
	}
	tracef("[Sync] Applied %d transforms (%d unmapped, %d warnings)",
		res.Applied, res.SkippedUnmapped, res.Warnings)
	return res
}

// sortedKeys returns the update's keys in stable order so warning logs and
// retry behaviour are deterministic across runs.
func sortedKeys(update TransformUpdate) []ObjectIdentity {
	keys := make([]ObjectIdentity, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
