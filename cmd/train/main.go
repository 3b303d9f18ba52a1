// Command train runs DeepLab semantic segmentation training from a YAML
// experiment configuration.
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/abhay-venkatesh/deeplab-go/checkpoints"
	"github.com/abhay-venkatesh/deeplab-go/config"
	"github.com/abhay-venkatesh/deeplab-go/dataset"
	"github.com/abhay-venkatesh/deeplab-go/deeplab"
	"github.com/abhay-venkatesh/deeplab-go/nn"
	"github.com/abhay-venkatesh/deeplab-go/optimizer"
	"github.com/abhay-venkatesh/deeplab-go/tensor"
	"github.com/abhay-venkatesh/deeplab-go/training"
)

func main() {
	configPath := flag.String("config", "", "path to the experiment YAML configuration")
	cuda := flag.Bool("cuda", true, "train on GPU when available")
	seed := flag.Int64("seed", 1, "random seed for weight initialization and shuffling")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("--config is required")
	}
	if err := run(*configPath, *cuda, *seed); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string, cuda bool, seed int64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	device := tensor.SelectDevice(cuda)
	if cuda && device == tensor.CPU {
		fmt.Println("CUDA is not available")
	}
	fmt.Printf("Running on %s\n", device)
	fmt.Printf("Experiment: %s (%d classes, %d iterations)\n", cfg.Dataset, cfg.NClasses, cfg.IterMax)

	loader, err := buildLoader(cfg, seed)
	if err != nil {
		return err
	}

	model, err := buildModel(cfg, seed)
	if err != nil {
		return err
	}

	opt, err := buildOptimizer(cfg, model)
	if err != nil {
		return err
	}
	sched, err := training.NewPolyLR(cfg.LR, cfg.IterMax, cfg.LRDecay, cfg.PolyPower)
	if err != nil {
		return err
	}

	trainer, err := training.NewTrainer(training.TrainerConfig{
		IterMax:  cfg.IterMax,
		IterSize: cfg.IterSize,
		IterTB:   cfg.IterTB,
		IterSave: cfg.IterSave,
		SaveDir:  cfg.SaveDir,
		LogDir:   cfg.LogDir,
	}, model, training.NewCrossEntropyLoss2d(cfg.IgnoreLabel), opt, sched, loader)
	if err != nil {
		return err
	}
	return trainer.Run()
}

func buildLoader(cfg *config.Config, seed int64) (*dataset.Loader, error) {
	aug, err := dataset.NewAugmenter(
		cfg.Image.Size.Train,
		cfg.Scales,
		cfg.RandomFlip,
		cfg.WarpImage,
		[3]float32{cfg.Image.Mean.R, cfg.Image.Mean.G, cfg.Image.Mean.B},
		cfg.IgnoreLabel,
		seed,
	)
	if err != nil {
		return nil, err
	}

	folder, err := dataset.NewSegmentationFolder(dataset.FolderConfig{
		Root:      cfg.Root,
		SplitFile: filepath.Join(cfg.Root, "ImageSets", "Segmentation", cfg.Split.Train+".txt"),
	}, aug)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Dataset: %s split %q with %d samples\n", cfg.Dataset, cfg.Split.Train, folder.Len())

	return dataset.NewLoader(folder, dataset.LoaderConfig{
		BatchSize: cfg.BatchSize.Train,
		Shuffle:   true,
		Workers:   cfg.NumWorkers,
		Prefetch:  2,
		Seed:      seed,
	})
}

func buildModel(cfg *config.Config, seed int64) (*deeplab.Model, error) {
	nn.SetRandomSeed(seed)
	modelCfg := deeplab.DefaultConfig(cfg.NClasses)
	model, err := deeplab.New(modelCfg)
	if err != nil {
		return nil, err
	}

	if cfg.InitModel != "" {
		ckpt, err := checkpoints.LoadFile(cfg.InitModel)
		if err != nil {
			return nil, fmt.Errorf("failed to load initial weights: %v", err)
		}
		// Pretrained weights cover the backbone only; the ASPP head trains
		// from scratch.
		if err := checkpoints.RestoreInto(ckpt, model.NamedParameters(), "aspp"); err != nil {
			return nil, fmt.Errorf("failed to restore initial weights: %v", err)
		}
		fmt.Printf("Initialized backbone from %s\n", cfg.InitModel)
	}
	return model, nil
}

// buildOptimizer wires the three fixed parameter groups: backbone at the
// base rate with weight decay, ASPP weights at 10x with weight decay, and
// ASPP biases at 20x without decay.
func buildOptimizer(cfg *config.Config, model *deeplab.Model) (*optimizer.SGD, error) {
	groups := model.ParameterGroups()
	return optimizer.NewSGD([]optimizer.ParamGroup{
		{
			Name:        string(deeplab.GroupBase),
			Params:      groups.Base,
			LR:          cfg.LR,
			WeightDecay: cfg.WeightDecay,
			LRMult:      1,
		},
		{
			Name:        string(deeplab.GroupASPPWeight),
			Params:      groups.ASPPWeight,
			LR:          10 * cfg.LR,
			WeightDecay: cfg.WeightDecay,
			LRMult:      10,
		},
		{
			Name:        string(deeplab.GroupASPPBias),
			Params:      groups.ASPPBias,
			LR:          20 * cfg.LR,
			WeightDecay: 0,
			LRMult:      20,
		},
	}, cfg.Momentum)
}
