package liveness

import (
	"errors"
	"math"
)

// ErrPoseSolveFailure reports that the perspective-n-point solve did not
// converge for a frame. The caller degrades to a zero pose estimate.
var ErrPoseSolveFailure = errors.New("pose solve did not converge")

// vec3 is a 3D point or vector.
type vec3 struct{ x, y, z float64 }

// vec2 is a 2D image point.
type vec2 struct{ x, y float64 }

// camera holds the approximate pinhole intrinsics. With no calibration
// available, focal length is taken as the image width and the principal
// point as the image center.
type camera struct {
	focal float64
	cx    float64
	cy    float64
}

const (
	pnpMaxIterations = 100
	pnpStepTolerance = 1e-10
	pnpInitialDepth  = 1000 // mm, roughly one meter from the camera
)

// rodrigues converts a rotation vector to a 3x3 rotation matrix using the
// Rodrigues formula R = I + sin(θ)K + (1-cos(θ))K².
func rodrigues(r vec3) [3][3]float64 {
	theta := math.Sqrt(r.x*r.x + r.y*r.y + r.z*r.z)
	if theta < 1e-12 {
		return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}

	kx, ky, kz := r.x/theta, r.y/theta, r.z/theta
	s, c := math.Sin(theta), math.Cos(theta)
	v := 1 - c

	return [3][3]float64{
		{c + kx*kx*v, kx*ky*v - kz*s, kx*kz*v + ky*s},
		{ky*kx*v + kz*s, c + ky*ky*v, ky*kz*v - kx*s},
		{kz*kx*v - ky*s, kz*ky*v + kx*s, c + kz*kz*v},
	}
}

// project applies the pose (rvec, tvec) and the pinhole model to a 3D
// model point. The boolean is false when the point lands behind the camera.
func project(p vec3, rvec, tvec vec3, cam camera) (vec2, bool) {
	r := rodrigues(rvec)
	x := r[0][0]*p.x + r[0][1]*p.y + r[0][2]*p.z + tvec.x
	y := r[1][0]*p.x + r[1][1]*p.y + r[1][2]*p.z + tvec.y
	z := r[2][0]*p.x + r[2][1]*p.y + r[2][2]*p.z + tvec.z

	if z < 1e-6 {
		return vec2{}, false
	}
	return vec2{
		x: cam.focal*x/z + cam.cx,
		y: cam.focal*y/z + cam.cy,
	}, true
}

// residuals computes the stacked 2D reprojection errors for the current
// pose parameters params = [rx ry rz tx ty tz].
func residuals(params [6]float64, model []vec3, image []vec2, cam camera) ([]float64, bool) {
	rvec := vec3{params[0], params[1], params[2]}
	tvec := vec3{params[3], params[4], params[5]}

	out := make([]float64, 2*len(model))
	for i, p := range model {
		proj, ok := project(p, rvec, tvec, cam)
		if !ok {
			return nil, false
		}
		out[2*i] = proj.x - image[i].x
		out[2*i+1] = proj.y - image[i].y
	}
	return out, true
}

// solveLinear6 solves the 6x6 system A·x = b in place using Gaussian
// elimination with partial pivoting. The system is tiny and fixed-size, so
// a general matrix library would be overkill here.
func solveLinear6(a [6][6]float64, b [6]float64) ([6]float64, bool) {
	var x [6]float64

	for col := 0; col < 6; col++ {
		pivot := col
		for row := col + 1; row < 6; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return x, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < 6; row++ {
			f := a[row][col] / a[col][col]
			for k := col; k < 6; k++ {
				a[row][k] -= f * a[col][k]
			}
			b[row] -= f * b[col]
		}
	}

	for row := 5; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < 6; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	return x, true
}

// solvePnP recovers the camera-relative pose of the generic face model from
// six 2D-3D correspondences. It minimizes reprojection error with a damped
// Gauss-Newton (Levenberg-Marquardt) iteration over the rotation vector and
// translation, starting from a frontal pose one meter out.
//
// Returns the rotation matrix of the converged pose, or ErrPoseSolveFailure
// when the iteration diverges or stalls without converging.
func solvePnP(model []vec3, image []vec2, cam camera) ([3][3]float64, error) {
	if len(model) != len(image) || len(model) < 4 {
		return [3][3]float64{}, ErrPoseSolveFailure
	}

	params := [6]float64{0, 0, 0, 0, 0, pnpInitialDepth}
	lambda := 1e-3

	res, ok := residuals(params, model, image, cam)
	if !ok {
		return [3][3]float64{}, ErrPoseSolveFailure
	}
	cost := sumSquares(res)

	for iter := 0; iter < pnpMaxIterations; iter++ {
		jac, ok := numericJacobian(params, model, image, cam)
		if !ok {
			return [3][3]float64{}, ErrPoseSolveFailure
		}

		// Normal equations (JᵀJ + λ·diag(JᵀJ))·δ = -Jᵀr
		var jtj [6][6]float64
		var jtr [6]float64
		for row := 0; row < len(res); row++ {
			for i := 0; i < 6; i++ {
				jtr[i] += jac[row][i] * res[row]
				for j := 0; j < 6; j++ {
					jtj[i][j] += jac[row][i] * jac[row][j]
				}
			}
		}

		a := jtj
		var b [6]float64
		for i := 0; i < 6; i++ {
			a[i][i] += lambda * jtj[i][i]
			b[i] = -jtr[i]
		}

		delta, ok := solveLinear6(a, b)
		if !ok {
			return [3][3]float64{}, ErrPoseSolveFailure
		}

		var next [6]float64
		for i := range params {
			next[i] = params[i] + delta[i]
		}

		nextRes, ok := residuals(next, model, image, cam)
		if !ok {
			lambda *= 10
			if lambda > 1e10 {
				return [3][3]float64{}, ErrPoseSolveFailure
			}
			continue
		}
		nextCost := sumSquares(nextRes)

		if math.IsNaN(nextCost) || math.IsInf(nextCost, 0) {
			return [3][3]float64{}, ErrPoseSolveFailure
		}

		if nextCost < cost {
			params = next
			res = nextRes
			cost = nextCost
			lambda = math.Max(lambda*0.1, 1e-12)

			if stepNorm(delta) < pnpStepTolerance {
				break
			}
		} else {
			lambda *= 10
			if lambda > 1e10 {
				break
			}
		}
	}

	// Accept only poses that actually explain the observations: a mean
	// reprojection error above a few pixels per point means the iteration
	// stalled in a bad basin.
	meanErr := math.Sqrt(cost / float64(len(res)))
	if meanErr > 10 {
		return [3][3]float64{}, ErrPoseSolveFailure
	}

	return rodrigues(vec3{params[0], params[1], params[2]}), nil
}

// numericJacobian approximates the residual Jacobian by central differences.
func numericJacobian(params [6]float64, model []vec3, image []vec2, cam camera) ([][6]float64, bool) {
	jac := make([][6]float64, 2*len(model))

	for i := 0; i < 6; i++ {
		h := 1e-6
		if i >= 3 {
			h = 1e-3 // translation is in mm, use a coarser step
		}

		plus := params
		plus[i] += h
		minus := params
		minus[i] -= h

		rp, ok1 := residuals(plus, model, image, cam)
		rm, ok2 := residuals(minus, model, image, cam)
		if !ok1 || !ok2 {
			return nil, false
		}

		for row := range jac {
			jac[row][i] = (rp[row] - rm[row]) / (2 * h)
		}
	}
	return jac, true
}

func sumSquares(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return s
}

func stepNorm(v [6]float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}
