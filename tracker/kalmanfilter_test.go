package tracker

import (
	"gonum.org/v1/gonum/mat"
	"testing"
)

// floatsEqual compares slices of float32
func floatsEqual(a, b []float32, epsilon float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if diff := a[i] - b[i]; diff > epsilon || diff < -epsilon {
			return false
		}
	}
	return true
}

// matricesEqual compare matrices
func matricesEqual(a, b mat.Matrix, epsilon float64) bool {
	r1, c1 := a.Dims()
	r2, c2 := b.Dims()

	if r1 != r2 || c1 != c2 {
		return false
	}

	for i := 0; i < r1; i++ {
		for j := 0; j < c1; j++ {
			if diff := a.At(i, j) - b.At(i, j); diff > epsilon || diff < -epsilon {
				return false
			}
		}
	}

	return true
}

// TestKalmanFilter steps a 50px tall box through initiate, predict and update
// and compares against reference values from the C++ ByteTrack filter
func TestKalmanFilter(t *testing.T) {
	kf := NewKalmanFilter(1.0/20, 1.0/160)

	// Initial state mean and covariance
	mean := make(StateMean, 8)
	covariance := &StateCov{mat.NewDense(8, 8, nil)}

	measurement := DetectBox{100.0, 200.0, 1.0, 50.0}

	// Initialize the filter
	kf.Initiate(mean, covariance, measurement)

	expectedMeanInit := StateMean{100.0, 200.0, 1.0, 50.0, 0.0, 0.0, 0.0, 0.0}

	expectedCovarianceInit := mat.NewDense(8, 8, []float64{
		25.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0,
		0.0, 25.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0,
		0.0, 0.0, 9.999999747378752e-05, 0.0, 0.0, 0.0, 0.0, 0.0,
		0.0, 0.0, 0.0, 25.0, 0.0, 0.0, 0.0, 0.0,
		0.0, 0.0, 0.0, 0.0, 9.765625, 0.0, 0.0, 0.0,
		0.0, 0.0, 0.0, 0.0, 0.0, 9.765625, 0.0, 0.0,
		0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 9.999999439624929e-11, 0.0,
		0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 9.765625,
	})

	if !floatsEqual(mean, expectedMeanInit, 1e-4) {
		t.Errorf("expected mean %v, got %v", expectedMeanInit, mean)
	}

	if !matricesEqual(covariance, expectedCovarianceInit, 1e-4) {
		t.Errorf("expected covariance %v, got %v",
			mat.Formatted(expectedCovarianceInit, mat.Prefix(""), mat.Excerpt(0)),
			mat.Formatted(covariance, mat.Prefix(""), mat.Excerpt(0)),
		)
	}

	// Predict the next state
	kf.Predict(mean, covariance)

	expectedMeanPredict := StateMean{100.0, 200.0, 1.0, 50.0, 0.0, 0.0, 0.0, 0.0}
	expectedCovariancePredict := mat.NewDense(8, 8, []float64{
		41.015625, 0.0, 0.0, 0.0, 9.765625, 0.0, 0.0, 0.0,
		0.0, 41.015625, 0.0, 0.0, 0.0, 9.765625, 0.0, 0.0,
		0.0, 0.0, 0.00020000009494756943, 0.0, 0.0, 0.0, 9.999999439624929e-11, 0.0,
		0.0, 0.0, 0.0, 41.015625, 0.0, 0.0, 0.0, 9.765625,
		9.765625, 0.0, 0.0, 0.0, 9.86328125, 0.0, 0.0, 0.0,
		0.0, 9.765625, 0.0, 0.0, 0.0, 9.86328125, 0.0, 0.0,
		0.0, 0.0, 9.999999439624929e-11, 0.0, 0.0, 0.0, 1.9999998879249858e-10, 0.0,
		0.0, 0.0, 0.0, 9.765625, 0.0, 0.0, 0.0, 9.86328125,
	})

	if !floatsEqual(mean, expectedMeanPredict, 1e-4) {
		t.Errorf("expected mean %v, got %v", expectedMeanPredict, mean)
	}

	if !matricesEqual(covariance, expectedCovariancePredict, 1e-4) {
		t.Errorf("expected covariance %v, got %v",
			mat.Formatted(expectedCovariancePredict, mat.Prefix(""), mat.Excerpt(0)),
			mat.Formatted(covariance, mat.Prefix(""), mat.Excerpt(0)),
		)
	}

	// New measurement
	measurement = DetectBox{105.0, 205.0, 1.1, 55.0}

	// Update the filter with the new measurement
	err := kf.Update(mean, covariance, measurement)

	if err != nil {
		t.Errorf("failed to update: %v", err)
	}

	expectedMeanUpdate := StateMean{104.338844, 204.338837, 1.001961, 54.338844, 1.033058, 1.033058, 0.0, 1.033058}
	expectedCovarianceUpdate := mat.NewDense(8, 8, []float64{
		5.423553719008268, 0.0, 0.0, 0.0, 1.2913223140495873, 0.0, 0.0, 0.0,
		0.0, 5.423553719008268, 0.0, 0.0, 0.0, 1.2913223140495873, 0.0, 0.0,
		0.0, 0.0, 0.00019607852290531608, 0.0, 0.0, 0.0, 9.803920941585902e-11, 0.0,
		0.0, 0.0, 0.0, 5.423553719008268, 0.0, 0.0, 0.0, 1.2913223140495873,
		1.291322314049589, 0.0, 0.0, 0.0, 7.845590134297521, 0.0, 0.0, 0.0,
		0.0, 1.291322314049589, 0.0, 0.0, 0.0, 7.845590134297521, 0.0, 0.0,
		0.0, 0.0, 9.803920941585902e-11, 0.0, 0.0, 0.0, 1.9999998781210662e-10, 0.0,
		0.0, 0.0, 0.0, 1.291322314049589, 0.0, 0.0, 0.0, 7.845590134297521,
	})

	if !floatsEqual(mean, expectedMeanUpdate, 1e-4) {
		t.Errorf("expected mean %v, got %v", expectedMeanUpdate, mean)
	}

	if !matricesEqual(covariance, expectedCovarianceUpdate, 1e-4) {
		t.Errorf("expected covariance %v, got %v",
			mat.Formatted(expectedCovarianceUpdate, mat.Prefix(""), mat.Excerpt(0)),
			mat.Formatted(covariance, mat.Prefix(""), mat.Excerpt(0)),
		)
	}
}

// covDiag returns the diagonal of an 8x8 covariance
func covDiag(cov *StateCov) []float32 {
	diag := make([]float32, 8)

	for i := range diag {
		diag[i] = float32(cov.At(i, i))
	}

	return diag
}

func TestKalmanNoise(t *testing.T) {
	kf := NewKalmanFilter(1.0/20, 1.0/160)

	tests := []struct {
		name     string
		h        float32
		posScale float32
		velScale float32
		want     StateMean
	}{
		{"predict 4px", 4, 1, 1, StateMean{0.2, 0.2, 1e-2, 0.2, 0.025, 0.025, 1e-5, 0.025}},
		{"initiate 4px", 4, 2, 10, StateMean{0.4, 0.4, 1e-2, 0.4, 0.25, 0.25, 1e-5, 0.25}},
		{"initiate 50px", 50, 2, 10, StateMean{5, 5, 1e-2, 5, 3.125, 3.125, 1e-5, 3.125}},
		{"zero height", 0, 2, 10, StateMean{0, 0, 1e-2, 0, 0, 0, 1e-5, 0}},
	}

	for _, tc := range tests {
		got := kf.noise(tc.h, tc.posScale, tc.velScale)

		if !floatsEqual(got, tc.want, 1e-6) {
			t.Errorf("%s: expected noise %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestKalmanInitiateScalesWithHeight(t *testing.T) {
	kf := NewKalmanFilter(1.0/20, 1.0/160)

	tests := []struct {
		name     string
		box      DetectBox
		wantDiag []float32
	}{
		{
			name:     "small square",
			box:      DetectBox{10, 20, 1, 4},
			wantDiag: []float32{0.16, 0.16, 1e-4, 0.16, 0.0625, 0.0625, 1e-10, 0.0625},
		},
		{
			name:     "small wide",
			box:      DetectBox{10, 20, 4, 4},
			wantDiag: []float32{0.16, 0.16, 1e-4, 0.16, 0.0625, 0.0625, 1e-10, 0.0625},
		},
		{
			name:     "small tall",
			box:      DetectBox{10, 20, 0.25, 8},
			wantDiag: []float32{0.64, 0.64, 1e-4, 0.64, 0.25, 0.25, 1e-10, 0.25},
		},
		{
			name:     "large square",
			box:      DetectBox{100, 200, 1, 50},
			wantDiag: []float32{25, 25, 1e-4, 25, 9.765625, 9.765625, 1e-10, 9.765625},
		},
	}

	for _, tc := range tests {
		mean := make(StateMean, 8)
		// stale velocity from a reused slice must be cleared
		for i := range mean {
			mean[i] = 99
		}

		covariance := &StateCov{mat.NewDense(8, 8, nil)}
		kf.Initiate(mean, covariance, tc.box)

		wantMean := StateMean{tc.box[0], tc.box[1], tc.box[2], tc.box[3], 0, 0, 0, 0}

		if !floatsEqual(mean, wantMean, 1e-6) {
			t.Errorf("%s: expected mean %v, got %v", tc.name, wantMean, mean)
		}

		if got := covDiag(covariance); !floatsEqual(got, tc.wantDiag, 1e-5) {
			t.Errorf("%s: expected covariance diagonal %v, got %v", tc.name, tc.wantDiag, got)
		}

		for i := 0; i < 8; i++ {
			for j := 0; j < 8; j++ {
				if i != j && covariance.At(i, j) != 0 {
					t.Errorf("%s: expected diagonal covariance, got %v at %d,%d",
						tc.name, covariance.At(i, j), i, j)
				}
			}
		}
	}
}

// TestKalmanSmallBox steps a 4px organism so the height scaled noise keeps
// the gain from being dominated by the fixed aspect terms
func TestKalmanSmallBox(t *testing.T) {
	kf := NewKalmanFilter(1.0/20, 1.0/160)

	mean := make(StateMean, 8)
	covariance := &StateCov{mat.NewDense(8, 8, nil)}

	kf.Initiate(mean, covariance, DetectBox{10, 20, 0.5, 4})
	kf.Predict(mean, covariance)

	expectedDiagPredict := []float32{0.2625, 0.2625, 2e-4, 0.2625, 0.063125, 0.063125, 2e-10, 0.063125}

	if got := covDiag(covariance); !floatsEqual(got, expectedDiagPredict, 1e-5) {
		t.Errorf("expected covariance diagonal %v, got %v", expectedDiagPredict, got)
	}

	if got := float32(covariance.At(0, 4)); !floatsEqual([]float32{got}, []float32{0.0625}, 1e-5) {
		t.Errorf("expected position velocity covariance 0.0625, got %v", got)
	}

	err := kf.Update(mean, covariance, DetectBox{12, 22, 0.5, 5})

	if err != nil {
		t.Fatalf("failed to update: %v", err)
	}

	// gain on position is 0.2625 / (0.2625 + 0.04)
	expectedMean := StateMean{11.735537, 21.735537, 0.5, 4.867769, 0.413223, 0.413223, 0, 0.206612}

	if !floatsEqual(mean, expectedMean, 1e-3) {
		t.Errorf("expected mean %v, got %v", expectedMean, mean)
	}
}
