package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/FlavioCFOliveira/minideep/internal/activations"
	"github.com/FlavioCFOliveira/minideep/internal/compiler"
	"github.com/FlavioCFOliveira/minideep/internal/net"
	"github.com/FlavioCFOliveira/minideep/internal/stats"
)

func main() {
	fmt.Println("=== XOR Training Example ===")

	// The XOR function cannot be solved by a single-layer perceptron
	// but can be solved by a multi-layer perceptron with hidden layers
	in := 2
	hidden := 4
	out := 1

	fmt.Printf("Network architecture: %d-%d-%d\n", in, hidden, out)
	fmt.Println("Activation functions: Tanh (hidden), Sigmoid with cross entropy (output)")
	fmt.Println("Optimizer: gradient descent with learning rate 0.5")

	network, err := net.NewClassifier(in, hidden, out)
	if err != nil {
		fmt.Printf("Error creating network: %v\n", err)
		return
	}
	if err := network.SetHiddenActivation(activations.TypeTanh); err != nil {
		fmt.Printf("Error setting activation: %v\n", err)
		return
	}
	network.InitParams(rand.New(rand.NewSource(42)))

	// XOR training data. A single sigmoid output is the probability of
	// category 0, so the target is 1 where XOR is 0.
	trainX := [][]float32{
		{0, 0},
		{0, 1},
		{1, 0},
		{1, 1},
	}
	trainY := [][]float32{
		{1},
		{0},
		{0},
		{1},
	}

	trainer := &net.Trainer{
		Model:        network,
		BatchSize:    -1,
		LearningRate: 0.5,
		Callbacks:    []net.Callback{net.Logger{Interval: 500}},
	}
	if _, err := trainer.Fit(trainX, trainY, 5000); err != nil {
		fmt.Printf("Error training network: %v\n", err)
		return
	}

	// Test the network
	fmt.Println("\nTesting trained network:")
	for i := range trainX {
		pred := network.CalcOutput(trainX[i])
		fmt.Printf("Input: %v, XOR: %d, Target: %d\n",
			trainX[i], stats.PredictedCategory(pred), stats.RealityCategory(trainY[i]))
	}

	s, err := net.Evaluate(network, trainX, trainY)
	if err != nil {
		fmt.Printf("Error evaluating network: %v\n", err)
		return
	}
	fmt.Printf("\n%s\n", s)

	// Compile the trained layout to Go source
	fmt.Println("\nCompiling network to xor_network.go...")
	c, err := compiler.New(compiler.Options{PackageName: "xornet", TypeName: "XorNet"})
	if err != nil {
		fmt.Printf("Error creating compiler: %v\n", err)
		return
	}
	src, err := c.Compile(network)
	if err != nil {
		fmt.Printf("Error compiling network: %v\n", err)
		return
	}
	if err := os.WriteFile("xor_network.go", src, 0644); err != nil {
		fmt.Printf("Error writing compiled network: %v\n", err)
		return
	}
	fmt.Println("Network compiled successfully!")
}
