package main

import (
	"flag"
	"fmt"
	"math/rand"

	"github.com/FlavioCFOliveira/minideep/internal/activations"
	"github.com/FlavioCFOliveira/minideep/internal/net"
	"github.com/FlavioCFOliveira/minideep/internal/opt"
	"github.com/FlavioCFOliveira/minideep/internal/stats"
)

// Iris dataset: 3 classes (Setosa, Versicolor, Virginica)
// Each sample has 4 features (sepal length, sepal width, petal length, petal width)
func main() {
	dataFile := flag.String("data", "", "CSV file with 4 features and the class index in the last column (default synthetic data)")
	header := flag.Bool("header", false, "the CSV file has a header line")
	logFile := flag.String("log", "", "write per-epoch statistics to this CSV file")
	flag.Parse()

	rnd := rand.New(rand.NewSource(42))

	var data *net.Dataset
	if *dataFile != "" {
		var err error
		data, err = net.LoadCSV(*dataFile, -1, *header)
		if err != nil {
			fmt.Printf("Error loading data: %v\n", err)
			return
		}
	} else {
		data = generateIrisData(rnd)
	}
	data.Normalize()
	data.Shuffle(rnd)
	train, test := data.Split(0.8)

	categories := data.CategoryCount()
	fmt.Printf("Training Iris classifier (4-8-6-%d network) on %d samples...\n", categories, len(train.Samples))

	network, err := net.NewClassifier(4, 8, 6, categories)
	if err != nil {
		fmt.Printf("Error creating network: %v\n", err)
		return
	}
	if err := network.SetHiddenActivation(activations.TypeRelu); err != nil {
		fmt.Printf("Error setting activation: %v\n", err)
		return
	}
	network.InitParams(rnd)

	callbacks := []net.Callback{
		net.Logger{Interval: 200},
		net.NewEarlyStopping(100, 1e-4),
	}
	if *logFile != "" {
		callbacks = append(callbacks, net.NewCSVLogger(*logFile, false))
	}

	trainer := &net.Trainer{
		Model:     network,
		BatchSize: 16,
		Scheduler: opt.NewStepLR(500, 0.5, 0.2),
		Shuffle:   rnd,
		Callbacks: callbacks,
	}
	if _, err := trainer.Fit(train.Samples, train.Targets(categories), 2000); err != nil {
		fmt.Printf("Error training network: %v\n", err)
		return
	}

	s, err := net.Evaluate(network, test.Samples, test.Targets(categories))
	if err != nil {
		fmt.Printf("Error evaluating network: %v\n", err)
		return
	}
	fmt.Printf("\nTest Accuracy: %.1f%%\n", s.Accuracy()*100)
	fmt.Println(s)

	fmt.Println("\nSample predictions:")
	for i := 0; i < 10 && i < len(test.Samples); i++ {
		pred := network.CalcOutput(test.Samples[i])
		fmt.Printf("Sample %d: Predicted=%d, Actual=%d\n", i, stats.PredictedCategory(pred), test.Categories[i])
	}
}

func generateIrisData(rnd *rand.Rand) *net.Dataset {
	// Simplified Iris data - using mean values for each class
	// Class 0: Setosa (sepal length 5.0, sepal width 3.4, petal length 1.5, petal width 0.2)
	// Class 1: Versicolor (sepal length 5.9, sepal width 2.8, petal length 4.3, petal width 1.3)
	// Class 2: Virginica (sepal length 6.6, sepal width 3.0, petal length 5.6, petal width 2.0)
	means := [][]float32{
		{5.0, 3.4, 1.5, 0.2},
		{5.9, 2.8, 4.3, 1.3},
		{6.6, 3.0, 5.6, 2.0},
	}
	noise := []float32{0.2, 0.25, 0.25}

	d := &net.Dataset{}
	for c, mean := range means {
		for i := 0; i < 30; i++ {
			d.Samples = append(d.Samples, addNoise(mean, noise[c], rnd))
			d.Categories = append(d.Categories, c)
		}
	}
	return d
}

func addNoise(sample []float32, noise float32, rnd *rand.Rand) []float32 {
	result := make([]float32, len(sample))
	for i, v := range sample {
		result[i] = v + (rnd.Float32()*2-1)*noise
	}
	return result
}
