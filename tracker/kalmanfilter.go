package tracker

import (
	"errors"
	"fmt"
	"gonum.org/v1/gonum/mat"
)

// DetectBox is a measurement in xyah form
type DetectBox []float32

// StateMean is the 8 dimensional state x, y, a, h, vx, vy, va, vh
type StateMean []float32

// StateCov is the 8x8 state covariance
type StateCov struct {
	*mat.Dense
}

// StateHMean is the state projected into the 4 dimensional measurement space
type StateHMean []float32

// StateHCov is the 4x4 projected covariance
type StateHCov struct {
	*mat.SymDense
}

// KalmanFilter is a constant velocity model over box centre, aspect ratio
// and height.  Process and measurement noise scale with the box height so
// small organisms are not over smoothed.
type KalmanFilter struct {
	stdWeightPosition float32
	stdWeightVelocity float32
	// motionMat is the 8x8 transition matrix
	motionMat *mat.Dense
	// updateMat is the 4x8 observation matrix
	updateMat *mat.Dense
}

// NewKalmanFilter returns a filter with the given noise weights
func NewKalmanFilter(stdWeightPosition, stdWeightVelocity float32) *KalmanFilter {

	const ndim = 4

	motionMat := mat.NewDense(2*ndim, 2*ndim, nil)
	updateMat := mat.NewDense(ndim, 2*ndim, nil)

	for i := 0; i < 2*ndim; i++ {
		motionMat.Set(i, i, 1)
	}

	// position advances by velocity with dt of one frame
	for i := 0; i < ndim; i++ {
		motionMat.Set(i, ndim+i, 1)
		updateMat.Set(i, i, 1)
	}

	return &KalmanFilter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		motionMat:         motionMat,
		updateMat:         updateMat,
	}
}

// noise returns the per state standard deviations scaled by height h.  The
// position and velocity weights are multiplied by posScale and velScale.
func (kf *KalmanFilter) noise(h, posScale, velScale float32) StateMean {
	pos := posScale * kf.stdWeightPosition * h
	vel := velScale * kf.stdWeightVelocity * h

	return StateMean{pos, pos, 1e-2, pos, vel, vel, 1e-5, vel}
}

// Initiate sets the state from the first measurement with zero velocity
func (kf *KalmanFilter) Initiate(mean StateMean, covariance *StateCov,
	measurement DetectBox) {

	copy(mean[:4], measurement[:4])

	for i := 4; i < 8; i++ {
		mean[i] = 0
	}

	for i, sd := range kf.noise(measurement[3], 2, 10) {
		covariance.Set(i, i, float64(sd*sd))
	}
}

// Predict advances the state mean and covariance by one frame
func (kf *KalmanFilter) Predict(mean StateMean, covariance *StateCov) {

	motionCov := mat.NewDense(8, 8, nil)

	for i, sd := range kf.noise(mean[3], 1, 1) {
		motionCov.Set(i, i, float64(sd*sd))
	}

	meanVec := mat.NewVecDense(8, nil)

	for i := 0; i < 8; i++ {
		meanVec.SetVec(i, float64(mean[i]))
	}

	predicted := mat.NewVecDense(8, nil)
	predicted.MulVec(kf.motionMat, meanVec)

	for i := 0; i < 8; i++ {
		mean[i] = float32(predicted.AtVec(i))
	}

	// P = F P F' + Q
	cov := covariance.Dense
	cov.Mul(kf.motionMat, cov)
	cov.Mul(cov, kf.motionMat.T())
	cov.Add(cov, motionCov)
}

// Update corrects the state with a measurement
func (kf *KalmanFilter) Update(mean StateMean, covariance *StateCov,
	measurement DetectBox) error {

	projectedMean, projectedCov := kf.project(mean, covariance)

	var chol mat.Cholesky

	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("projected covariance is not positive definite")
	}

	// K' = S^-1 (P H')'
	pht := mat.NewDense(8, 4, nil)
	pht.Mul(covariance.Dense, kf.updateMat.T())

	var gain mat.Dense

	if err := chol.SolveTo(&gain, pht.T()); err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	innovation := mat.NewVecDense(4, nil)

	for i := 0; i < 4; i++ {
		innovation.SetVec(i, float64(measurement[i]-projectedMean[i]))
	}

	correction := mat.NewVecDense(8, nil)
	correction.MulVec(gain.T(), innovation)

	for i := 0; i < 8; i++ {
		mean[i] += float32(correction.AtVec(i))
	}

	// P = P - K S K'
	ks := mat.NewDense(8, 4, nil)
	ks.Mul(gain.T(), projectedCov)

	ksk := mat.NewDense(8, 8, nil)
	ksk.Mul(ks, &gain)

	newCov := mat.NewDense(8, 8, nil)
	newCov.Sub(covariance.Dense, ksk)

	covariance.Dense = newCov

	return nil
}

// project maps the state into measurement space adding measurement noise
func (kf *KalmanFilter) project(mean StateMean,
	covariance *StateCov) (StateHMean, *StateHCov) {

	pos := kf.stdWeightPosition * mean[3]
	std := DetectBox{pos, pos, 1e-1, pos}

	meanVec := mat.NewVecDense(8, nil)

	for i, v := range mean {
		meanVec.SetVec(i, float64(v))
	}

	projectedVec := mat.NewVecDense(4, nil)
	projectedVec.MulVec(kf.updateMat, meanVec)

	// S = H P H' + R
	hp := mat.NewDense(4, 8, nil)
	hp.Mul(kf.updateMat, covariance.Dense)

	hph := mat.NewDense(4, 4, nil)
	hph.Mul(hp, kf.updateMat.T())

	projectedCov := mat.NewSymDense(4, nil)

	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			projectedCov.SetSym(i, j, hph.At(i, j))
		}
		projectedCov.SetSym(i, i, hph.At(i, i)+float64(std[i]*std[i]))
	}

	projectedMean := make(StateHMean, 4)

	for i := range projectedMean {
		projectedMean[i] = float32(projectedVec.AtVec(i))
	}

	return projectedMean, &StateHCov{projectedCov}
}
