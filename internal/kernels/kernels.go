// Package kernels provides the numeric primitives of minideep.
//
// Every function in this file is used twice: the interpreted operations call
// it directly, and the compiler reads this very file (see Source) to either
// splice a function body into generated code or to copy the function as a
// helper. A declaration in this file may only refer to its parameters, its own
// locals, other declarations of this file and the packages math, math32, rand,
// strconv and strings.
//
// Matrices are flat row-major slices: the element in row i, column j of a
// matrix with colCount columns is stored at mat[i*colCount+j].
//
// Products that feed a sum are wrapped in an explicit float32 conversion. This
// rules out fused multiply-add, so a kernel rounds the same way whether it is
// called here or spliced into generated code.
package kernels

import (
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
)

// MinNormal is the smallest positive normal float32. It keeps logarithms finite
// at exact 0 and 1 probabilities.
const MinNormal float32 = 0x1p-126

// MulAddVecSca computes vecB[j] += sca * vecA[j].
func MulAddVecSca(vecA []float32, sca float32, vecB []float32, length int) {
	for j := 0; j < length; j++ {
		vecB[j] += float32(sca * vecA[j])
	}
}

// MulAddMatSca computes matB[i][j] += sca * matA[i][j].
func MulAddMatSca(matA []float32, sca float32, matB []float32, rowCount, colCount int) {
	for i := 0; i < rowCount; i++ {
		rowA := matA[i*colCount : (i+1)*colCount]
		rowB := matB[i*colCount : (i+1)*colCount]

		for j := 0; j < colCount; j++ {
			rowB[j] += float32(sca * rowA[j])
		}
	}
}

// MulVecSca scales vec in place.
func MulVecSca(vec []float32, sca float32, length int) {
	for i := 0; i < length; i++ {
		vec[i] *= sca
	}
}

// MulMatSca scales mat in place.
func MulMatSca(mat []float32, sca float32, rowCount, colCount int) {
	for i := 0; i < rowCount; i++ {
		row := mat[i*colCount : (i+1)*colCount]

		for j := 0; j < colCount; j++ {
			row[j] *= sca
		}
	}
}

// AssignVecSca sets every element of vec to value.
func AssignVecSca(vec []float32, value float32, length int) {
	for i := 0; i < length; i++ {
		vec[i] = value
	}
}

// AssignMatSca sets every element of mat to value.
func AssignMatSca(mat []float32, value float32, rowCount, colCount int) {
	for i := 0; i < rowCount; i++ {
		row := mat[i*colCount : (i+1)*colCount]

		for j := 0; j < colCount; j++ {
			row[j] = value
		}
	}
}

// AssignGaussianVec fills vec with samples of a zero-mean normal distribution
// with the given standard deviation.
func AssignGaussianVec(vec []float32, stddev float32, rnd *rand.Rand, length int) {
	for i := 0; i < length; i++ {
		vec[i] = stddev * float32(rnd.NormFloat64())
	}
}

// AssignGaussianMat fills mat row by row with samples of a zero-mean normal
// distribution with the given standard deviation.
func AssignGaussianMat(mat []float32, stddev float32, rnd *rand.Rand, rowCount, colCount int) {
	for i := 0; i < rowCount; i++ {
		row := mat[i*colCount : (i+1)*colCount]

		for j := 0; j < colCount; j++ {
			row[j] = stddev * float32(rnd.NormFloat64())
		}
	}
}

// AddMat computes matA[i][j] += matB[i][j].
func AddMat(matA []float32, matB []float32, rowCount, colCount int) {
	for i := 0; i < rowCount; i++ {
		rowA := matA[i*colCount : (i+1)*colCount]
		rowB := matB[i*colCount : (i+1)*colCount]

		for j := 0; j < colCount; j++ {
			rowA[j] += rowB[j]
		}
	}
}

// AddVec computes vecA[i] += vecB[i].
func AddVec(vecA []float32, vecB []float32, length int) {
	for i := 0; i < length; i++ {
		vecA[i] += vecB[i]
	}
}

// AssignVecVec copies vecA into vecB.
func AssignVecVec(vecA []float32, vecB []float32, length int) {
	for i := 0; i < length; i++ {
		vecB[i] = vecA[i]
	}
}

// MulVecMat multiplies the row vector vec by mat and stores the result in
// out, i.e. out = vec * mat.
func MulVecMat(vec []float32, mat []float32, out []float32, rowCount, colCount int) {
	for j := 0; j < colCount; j++ {
		out[j] = 0
	}

	for i := 0; i < rowCount; i++ {
		row := mat[i*colCount : (i+1)*colCount]
		sca := vec[i]

		for j := 0; j < colCount; j++ {
			out[j] += float32(sca * row[j])
		}
	}
}

// OuterProduct computes mat[i][j] = vecU[i] * vecV[j].
func OuterProduct(vecU []float32, vecV []float32, mat []float32, uLength, vLength int) {
	for i := 0; i < uLength; i++ {
		sca := vecU[i]
		row := mat[i*vLength : (i+1)*vLength]

		for j := 0; j < vLength; j++ {
			row[j] = sca * vecV[j]
		}
	}
}

// MulMatVecPlusBias computes out = mat * vec + bias.
func MulMatVecPlusBias(mat []float32, vec []float32, bias []float32, out []float32, lengthOut, lengthInp int) {
	for i := 0; i < lengthOut; i++ {
		row := mat[i*lengthInp : (i+1)*lengthInp]

		var sum float32
		for j := 0; j < lengthInp; j++ {
			sum += float32(row[j] * vec[j])
		}

		out[i] = sum + bias[i]
	}
}

// CrossEntropyLossTwofold is the zero-safe cross entropy of a binary
// classification, where predicted[0] is the probability of category 0.
//
//kernel:inline
func CrossEntropyLossTwofold(predicted []float32, target []float32) (loss float32) {
	if target[0] == 1 {
		loss = -math32.Log(predicted[0] + MinNormal)
	} else if target[0] == 0 {
		loss = -math32.Log(1 - predicted[0] + MinNormal)
	} else {
		loss = float32(-target[0]*math32.Log(predicted[0]+MinNormal)) -
			float32((1-target[0])*math32.Log(1-predicted[0]+MinNormal))
	}
	return
}

// CrossEntropyLossManifold is the zero-safe cross entropy of a multinomial
// classification. Categories with a zero target are skipped.
//
//kernel:inline
func CrossEntropyLossManifold(predicted []float32, target []float32, length int) (loss float32) {
	loss = 0

	for i := 0; i < length; i++ {
		if target[i] == 0 {
			continue
		}

		loss -= float32(target[i] * math32.Log(predicted[i]+MinNormal))
	}

	loss /= float32(length)
	return
}

// CrossEntropyLossGradientTwofold writes the gradient of the binary cross
// entropy with respect to the predicted probability.
func CrossEntropyLossGradientTwofold(out []float32, target []float32, gradOut []float32) {
	gradOut[0] = (1-target[0])/(1-out[0]) - target[0]/out[0]
}

// CrossEntropyLossGradientManifold writes the gradient of the multinomial
// cross entropy with respect to the predicted probabilities.
func CrossEntropyLossGradientManifold(out []float32, target []float32, length int, gradOut []float32) {
	negNReciprocal := -1 / float32(length)

	for i := 0; i < length; i++ {
		gradOut[i] = negNReciprocal * (target[i] / out[i])
	}
}

// SigmoidWithCrossEntropyLossGradientTwofold writes the gradient of sigmoid
// followed by binary cross entropy with respect to the sigmoid input.
func SigmoidWithCrossEntropyLossGradientTwofold(out []float32, target []float32, gradInp []float32) {
	gradInp[0] = out[0] - target[0]
}

// SigmoidWithCrossEntropyLossGradientManifold is the multinomial variant of
// SigmoidWithCrossEntropyLossGradientTwofold.
func SigmoidWithCrossEntropyLossGradientManifold(out []float32, target []float32, length int, gradInp []float32) {
	nReciprocal := 1 / float32(length)

	for i := 0; i < length; i++ {
		gradInp[i] = float32(nReciprocal*target[i]) * (out[i] - 1)
	}
}

// SoftmaxWithCrossEntropyLossGradient writes the gradient of softmax followed
// by multinomial cross entropy with respect to the softmax input.
func SoftmaxWithCrossEntropyLossGradient(out []float32, target []float32, length int, gradInp []float32) {
	nReciprocal := 1 / float32(length)

	for i := 0; i < length; i++ {
		gradInp[i] = nReciprocal * (out[i] - target[i])
	}
}

func TanhVec(vec []float32, out []float32, length int) {
	for i := 0; i < length; i++ {
		out[i] = float32(math.Tanh(float64(vec[i])))
	}
}

func TanhDerivativeVec(gradInp []float32, out []float32, gradOut []float32, length int) {
	for i := 0; i < length; i++ {
		gradInp[i] = (1 - float32(out[i]*out[i])) * gradOut[i]
	}
}

func SigmoidVec(vec []float32, out []float32, length int) {
	for i := 0; i < length; i++ {
		out[i] = 1 / (1 + math32.Exp(-vec[i]))
	}
}

func SigmoidDerivativeVec(gradInp []float32, out []float32, gradOut []float32, length int) {
	for i := 0; i < length; i++ {
		gradInp[i] = (out[i] * (1 - out[i])) * gradOut[i]
	}
}

// SoftmaxVec subtracts the maximum before exponentiating, so large inputs do
// not overflow.
func SoftmaxVec(vec []float32, out []float32, length int) {
	top := math32.Inf(-1)
	for i := 0; i < length; i++ {
		top = max(top, vec[i])
	}

	var sum float32
	for i := 0; i < length; i++ {
		out[i] = math32.Exp(vec[i] - top)
		sum += out[i]
	}

	for i := 0; i < length; i++ {
		out[i] /= sum
	}
}

func SoftplusVec(vec []float32, out []float32, length int) {
	for i := 0; i < length; i++ {
		out[i] = float32(math.Log1p(math.Exp(float64(vec[i]))))
	}
}

// SoftplusDerivativeVec evaluates the derivative on the softplus input.
func SoftplusDerivativeVec(gradInp []float32, vec []float32, gradOut []float32, length int) {
	for i := 0; i < length; i++ {
		gradInp[i] = gradOut[i] / (1 + math32.Exp(-vec[i]))
	}
}

func ReluVec(vec []float32, out []float32, length int) {
	for i := 0; i < length; i++ {
		out[i] = max(0, vec[i])
	}
}

func ReluDerivativeVec(gradInp []float32, vec []float32, gradOut []float32, length int) {
	for i := 0; i < length; i++ {
		if vec[i] >= 0 {
			gradInp[i] = gradOut[i]
		} else {
			gradInp[i] = 0
		}
	}
}

// SwishVec stores the sigmoid of the input in sig and the swish output in out.
func SwishVec(vec []float32, sig []float32, out []float32, length int) {
	for i := 0; i < length; i++ {
		sig[i] = 1 / (1 + math32.Exp(-vec[i]))
		out[i] = sig[i] * vec[i]
	}
}

func SwishDerivativeVec(gradInp []float32, out []float32, sig []float32, gradOut []float32, length int) {
	for i := 0; i < length; i++ {
		gradInp[i] = (out[i] + float32(sig[i]*(1-out[i]))) * gradOut[i]
	}
}

// WriteSca writes the shortest decimal form of sca that parses back to the
// same float32.
func WriteSca(sb *strings.Builder, sca float32) {
	sb.WriteString(strconv.FormatFloat(float64(sca), 'g', -1, 32))
}

// WriteVec writes vec as "[x y z]".
func WriteVec(sb *strings.Builder, vec []float32, length int) {
	sb.WriteByte('[')

	for i := 0; i < length; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}

		WriteSca(sb, vec[i])
	}

	sb.WriteByte(']')
}

// WriteMat writes mat one row per line. Rows after the first are indented by
// indent+1 spaces so they line up below the first row.
func WriteMat(sb *strings.Builder, mat []float32, rowCount, colCount, indent int) {
	sb.WriteByte('[')

	for i := 0; i < rowCount; i++ {
		if i > 0 {
			sb.WriteString(strings.Repeat(" ", indent+1))
		}

		WriteVec(sb, mat[i*colCount:(i+1)*colCount], colCount)

		if i < rowCount-1 {
			sb.WriteByte('\n')
		}
	}

	sb.WriteByte(']')
}
