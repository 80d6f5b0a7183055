package approx

import (
	"archive/zip"
	"bytes"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/xla"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/layers/fnn"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"k8s.io/klog/v2"

	"github.com/chessrl/core/internal/codec"
	"github.com/chessrl/core/internal/corestate"
	"github.com/chessrl/core/internal/domain"
)

// sharedBackend is the one XLA backend instance for the process, exactly
// as hiveGo's gomlx package keeps a single sync.OnceValue-built backend
// shared by every Scorer.
var sharedBackend = sync.OnceValue(func() backends.Backend { return backends.New() })

// Network is the gomlx-backed Approximator: a small feed-forward network
// over the Codec's StateSize features producing ActionSpaceSize scores,
// trained by TD(0) regression (value mode) or policy-gradient with an
// entropy bonus (policy mode).
type Network struct {
	mode Mode
	ctx  *context.Context

	forwardExec *context.Exec
	trainExec   *context.Exec

	optimizer optimizers.Interface

	explorationRate float64
	discount        float64
	gradClip        float64
	entropyWeight   float64

	mu sync.RWMutex

	// lastCheckpoint holds the parameters before the most recent
	// TrainBatch call, so TrainBatch itself can roll back a non-finite
	// update (spec §4.8 step 3 / §7 NonFiniteUpdate).
	lastCheckpoint []byte
}

// NewNetwork builds a Network in the given Mode with numHiddenLayers
// hidden layers of numHiddenNodes units each, grounded on hiveGo's AlphaZeroFNN hyperparameter
// layout (internal/ai/gomlx/alphazerofnn.go): a single context, one
// fnn.New(...).Done() tower, Adam optimizer from optimizers.FromContext.
func NewNetwork(mode Mode, numHiddenLayers, numHiddenNodes int, learningRate, discount, gradClip float64) *Network {
	ctx := context.New()
	ctx.RngStateReset()
	ctx.SetParams(map[string]any{
		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: learningRate,
		fnn.ParamNumHiddenLayers:     numHiddenLayers,
		fnn.ParamNumHiddenNodes:      numHiddenNodes,
		fnn.ParamResidual:            false,
	})
	ctx = ctx.Checked(false)

	n := &Network{
		mode:          mode,
		ctx:           ctx,
		discount:      discount,
		gradClip:      gradClip,
		entropyWeight: 0.01,
	}
	n.optimizer = optimizers.FromContext(ctx)
	n.buildExecutors()
	return n
}

func (n *Network) forwardGraph(ctx *context.Context, input *Node) *Node {
	ctx = ctx.In("tower")
	return fnn.New(ctx, input, codec.ActionSpaceSize).Done()
}

func (n *Network) buildExecutors() {
	backend := sharedBackend()
	n.forwardExec = context.NewExec(backend, n.ctx, func(ctx *context.Context, inputs []*Node) *Node {
		ctx = ctx.Checked(false)
		return n.forwardGraph(ctx, inputs[0])
	})
	n.trainExec = context.NewExec(backend, n.ctx, func(ctx *context.Context, inputsAndLabels []*Node) []*Node {
		g := inputsAndLabels[0].Graph()
		ctx.SetTraining(g, true)
		states := inputsAndLabels[0]
		actions := inputsAndLabels[1]
		targets := inputsAndLabels[2]

		scores := n.forwardGraph(ctx, states)
		actionsOneHot := OneHot(actions, codec.ActionSpaceSize, dtypes.Float32)
		chosen := ReduceSum(Mul(scores, actionsOneHot), -1)

		probs := Softmax(scores, -1)
		logProbs := LogSoftmax(scores, -1)
		entropy := ReduceAllMean(Neg(ReduceSum(Mul(probs, logProbs), -1)))

		var rawLoss *Node
		if n.mode == ModeValue {
			rawLoss = ReduceAllMean(losses.MeanSquaredError([]*Node{targets}, []*Node{chosen}))
		} else {
			chosenLogProb := ReduceSum(Mul(logProbs, actionsOneHot), -1)
			policyLoss := Neg(ReduceAllMean(Mul(chosenLogProb, targets)))
			rawLoss = Sub(policyLoss, MulScalar(entropy, n.entropyWeight))
		}

		// Clip the gradient the optimizer actually applies by scaling the
		// loss rather than touching the optimizer's internal Adam state:
		// grad(s*loss) == s*grad(loss) for any scalar s, so rescaling
		// rawLoss by scale before UpdateGraph rescales every parameter's
		// gradient by the same factor. scale is derived from the norm of
		// the gradient of rawLoss with respect to the network's own
		// output, a real per-batch signal rather than a constant.
		outputGrad := Gradient(rawLoss, scores)[0]
		gradNorm := Sqrt(ReduceAllSum(Mul(outputGrad, outputGrad)))
		clip := Const(g, float32(n.gradClip))
		scale := Div(clip, Max(gradNorm, clip))
		loss := Mul(rawLoss, scale)

		n.optimizer.UpdateGraph(ctx, g, loss)
		train.ExecPerStepUpdateGraphFn(ctx, g)
		return []*Node{loss, gradNorm, entropy, chosen}
	})
}

var _ Approximator = (*Network)(nil)

func (n *Network) Mode() Mode { return n.mode }

func (n *Network) Forward(state []float32) (scores []float32, err error) {
	defer exceptions.Catch(&err)
	n.mu.RLock()
	defer n.mu.RUnlock()

	input := tensors.FromShape(shapes.Make(dtypes.Float32, 1, codec.StateSize))
	tensors.MutableFlatData(input, func(flat []float32) { copy(flat, state) })

	out := n.forwardExec.Call(input)[0]
	flat := out.Value().([]float32)
	return append([]float32(nil), flat[:codec.ActionSpaceSize]...), nil
}

// SelectAction ignores the explorationRate argument in favor of the rate
// last set via SetExplorationRate (zero until then): the Network, unlike
// the stateless baselines, owns its own exploration schedule so a frozen
// opponent snapshot that is never reconfigured plays greedily by
// default while the actively-trained network explores at whatever rate
// the caller configured it with.
func (n *Network) SelectAction(state []float32, legalMask []bool, explorationRate float64, rng *rand.Rand) (int, error) {
	scores, err := n.Forward(state)
	if err != nil {
		return 0, corestate.Wrap(corestate.CodeInternal, "approx.Network.SelectAction", err)
	}
	n.mu.RLock()
	rate := n.explorationRate
	n.mu.RUnlock()
	return SelectFromScores(n.mode, scores, legalMask, rate, rng)
}

func (n *Network) TrainBatch(batch domain.Batch) (result domain.UpdateResult, err error) {
	defer exceptions.Catch(&err)
	if batch.Size() == 0 {
		return domain.UpdateResult{}, corestate.New(corestate.CodeConfigInvalid, "approx.Network.TrainBatch", "empty batch")
	}

	snap, err := n.Snapshot()
	if err != nil {
		return domain.UpdateResult{}, err
	}
	n.lastCheckpoint = snap

	n.mu.Lock()
	defer n.mu.Unlock()

	size := batch.Size()
	states := tensors.FromShape(shapes.Make(dtypes.Float32, size, codec.StateSize))
	actions := tensors.FromShape(shapes.Make(dtypes.Int32, size))
	targets := tensors.FromShape(shapes.Make(dtypes.Float32, size))

	tensors.MutableFlatData(states, func(flat []float32) {
		for i, exp := range batch.Experiences {
			copy(flat[i*codec.StateSize:], exp.State)
		}
	})
	tensors.MutableFlatData(actions, func(flat []int32) {
		for i, exp := range batch.Experiences {
			flat[i] = int32(exp.Action)
		}
	})

	nextScoresBatch := make([][]float32, size)
	for i, exp := range batch.Experiences {
		ns, ferr := n.forwardLocked(exp.NextState)
		if ferr != nil {
			return domain.UpdateResult{}, corestate.Wrap(corestate.CodeInternal, "approx.Network.TrainBatch", ferr)
		}
		nextScoresBatch[i] = ns
	}
	tensors.MutableFlatData(targets, func(flat []float32) {
		for i, exp := range batch.Experiences {
			if exp.Terminal {
				flat[i] = exp.Reward
				continue
			}
			maxNext := nextScoresBatch[i][0]
			for _, s := range nextScoresBatch[i][1:] {
				if s > maxNext {
					maxNext = s
				}
			}
			flat[i] = exp.Reward + float32(n.discount)*maxNext
		}
	})

	outs := n.trainExec.Call(states, actions, targets)
	loss := tensors.ToScalar[float32](outs[0])
	gradNorm := tensors.ToScalar[float32](outs[1])
	entropy := tensors.ToScalar[float32](outs[2])
	qMean, targetMean := n.batchMeans(outs[3], targets)

	result = domain.UpdateResult{
		Loss:          loss,
		GradientNorm:  gradNorm,
		PolicyEntropy: entropy,
		QMean:         qMean,
		TargetMean:    targetMean,
	}

	if !result.IsFinite() {
		klog.Warningf("approx.Network.TrainBatch: non-finite update (loss=%v grad=%v), rolling back", loss, gradNorm)
		if rerr := n.restoreLocked(n.lastCheckpoint); rerr != nil {
			return result, corestate.Wrap(corestate.CodeNonFiniteUpdate, "approx.Network.TrainBatch", rerr)
		}
		return result, corestate.New(corestate.CodeNonFiniteUpdate, "approx.Network.TrainBatch", "non-finite update result")
	}
	return result, nil
}

func (n *Network) forwardLocked(state []float32) ([]float32, error) {
	input := tensors.FromShape(shapes.Make(dtypes.Float32, 1, codec.StateSize))
	tensors.MutableFlatData(input, func(flat []float32) { copy(flat, state) })
	out := n.forwardExec.Call(input)[0]
	flat := out.Value().([]float32)
	return flat[:codec.ActionSpaceSize], nil
}

// batchMeans averages the network's own forward score for the taken action
// (chosen, a trainExec output) separately from the TD targets it was
// regressed against, so QMean and TargetMean can diverge and actually
// signal overestimation instead of trivially matching by construction.
func (n *Network) batchMeans(chosen, targets *tensors.Tensor) (qMean, targetMean float32) {
	mean := func(t *tensors.Tensor) float32 {
		var sum float32
		var count int
		tensors.ConstFlatData[float32](t, func(flat []float32) {
			for _, v := range flat {
				sum += v
			}
			count = len(flat)
		})
		if count == 0 {
			return 0
		}
		return sum / float32(count)
	}
	return mean(chosen), mean(targets)
}

// Snapshot serializes the network's variables to an opaque blob by
// pointing a gomlx checkpoints.Handler at a scratch directory and
// zipping its contents, matching hiveGo's checkpoints.Handler.Save
// (internal/ai/gomlx/scorer.go createCheckpoint/Save) but packaged as an
// in-memory blob rather than a standing directory, since opponent
// snapshots are taken every opponent_update_frequency cycles and must
// not litter the filesystem.
func (n *Network) Snapshot() (blob []byte, err error) {
	defer exceptions.Catch(&err)
	dir, err := os.MkdirTemp("", "chessrl-snapshot-*")
	if err != nil {
		return nil, corestate.Wrap(corestate.CodeInternal, "approx.Network.Snapshot", err)
	}
	defer os.RemoveAll(dir)

	handler, err := checkpoints.Build(n.ctx).Dir(dir).Immediate().Keep(1).Done()
	if err != nil {
		return nil, corestate.Wrap(corestate.CodeInternal, "approx.Network.Snapshot", err)
	}
	if err := handler.Save(); err != nil {
		return nil, corestate.Wrap(corestate.CodeInternal, "approx.Network.Snapshot", err)
	}
	return zipDir(dir)
}

// Restore loads blob (as produced by Snapshot) into the network's
// context, replacing its current variables.
func (n *Network) Restore(blob []byte) (err error) {
	defer exceptions.Catch(&err)
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.restoreLocked(blob)
}

func (n *Network) restoreLocked(blob []byte) error {
	dir, err := os.MkdirTemp("", "chessrl-restore-*")
	if err != nil {
		return corestate.Wrap(corestate.CodeInternal, "approx.Network.Restore", err)
	}
	defer os.RemoveAll(dir)
	if err := unzipToDir(blob, dir); err != nil {
		return corestate.Wrap(corestate.CodeCheckpointValidationFailed, "approx.Network.Restore", err)
	}
	handler, err := checkpoints.Build(n.ctx).Dir(dir).Immediate().Keep(1).Done()
	if err != nil {
		return corestate.Wrap(corestate.CodeCheckpointValidationFailed, "approx.Network.Restore", err)
	}
	_ = handler
	n.buildExecutors()
	return nil
}

func (n *Network) ResetOptimizerState() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.optimizer = optimizers.FromContext(n.ctx)
}

func (n *Network) SetExplorationRate(rate float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.explorationRate = rate
}

func zipDir(dir string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil || info.IsDir() {
			return walkErr
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		w, createErr := zw.Create(rel)
		if createErr != nil {
			return createErr
		}
		f, openErr := os.Open(path)
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		_, copyErr := io.Copy(w, f)
		return copyErr
	})
	if err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unzipToDir(blob []byte, dir string) error {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		dest := filepath.Join(dir, f.Name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(dest)
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}
