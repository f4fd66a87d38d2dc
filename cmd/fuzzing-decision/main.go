// Copyright (c) 2026 The Fuzzfleet Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/yaml.v2"

	"github.com/fuzzfleet/decision/pkg/common/config"
	"github.com/fuzzfleet/decision/pkg/common/logging"
	"github.com/fuzzfleet/decision/pkg/common/metrics"
	"github.com/fuzzfleet/decision/pkg/decision"
	"github.com/fuzzfleet/decision/pkg/machine"
	"github.com/fuzzfleet/decision/pkg/pool"
	"github.com/fuzzfleet/decision/pkg/taskcluster"
)

var (
	version string
	app     = kingpin.New("fuzzing-decision", "Fuzzing pool decision engine")

	debug = app.Flag(
		"debug", "enable debug logging").
		Short('d').
		Envar("ENABLE_DEBUG_LOGGING").
		Bool()

	cfgFiles = app.Flag(
		"config", "service configuration files, merged in order").
		Short('c').
		Strings()

	poolsDir = app.Flag(
		"pools", "directory holding the pool declarations").
		Default("pools").
		Envar("FUZZING_POOLS").
		ExistingDir()

	machinesFile = app.Flag(
		"machines", "machine catalog YAML file").
		Default("machines.yml").
		Envar("FUZZING_MACHINES").
		ExistingFile()

	taskExpiry = app.Flag(
		"task-expiry", "how long emitted tasks and artifacts live").
		Default("672h").
		Duration()

	reregTimeout = app.Flag(
		"reregistration-timeout", "linux worker credential renewal window").
		Default("96h").
		Duration()

	checkCmd    = app.Command("check", "flatten a pool declaration and print it")
	checkPoolID = checkCmd.Arg("pool-id", "pool to check").Required().String()

	tasksCmd    = app.Command("tasks", "print the generated task graph for a pool")
	tasksPoolID = tasksCmd.Arg("pool-id", "pool to build tasks for").Required().String()
	tasksParent = tasksCmd.Flag(
		"task-id", "parent decision task id").
		Envar("TASK_ID").
		Required().
		String()
	indexMapFile = tasksCmd.Flag(
		"index-map", "YAML file mapping index namespaces to task ids").
		ExistingFile()

	runCmd    = app.Command("run", "sweep superseded tasks and submit this cycle's task graph")
	runPoolID = runCmd.Arg("pool-id", "pool to run a decision for").Required().String()
	runParent = runCmd.Flag(
		"task-id", "the decision task's own id").
		Envar("TASK_ID").
		Required().
		String()
	rootURL = runCmd.Flag(
		"root-url", "scheduling services root URL").
		Envar("TASKCLUSTER_PROXY_URL").
		Default("http://taskcluster").
		String()
	sweepWindow = runCmd.Flag(
		"sweep-window", "how far back hook firings are swept").
		Default("336h").
		Duration()

	resourcesCmd    = app.Command("resources", "print the worker pool, hook and role for a pool")
	resourcesPoolID = resourcesCmd.Arg("pool-id", "pool to build resources for").Required().String()
	launchCfgFile   = resourcesCmd.Flag(
		"launch-configs", "YAML file of per-cloud launch config templates").
		Required().
		ExistingFile()
)

// serviceConfig is the decision service's own YAML configuration,
// distinct from the pool declarations it operates on.
type serviceConfig struct {
	Metrics *metrics.Config `yaml:"metrics"`
}

func main() {
	app.Version(version)
	app.HelpFlag.Short('h')
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	logging.Configure(*debug)

	var cfg serviceConfig
	if len(*cfgFiles) > 0 {
		if err := config.Parse(&cfg, *cfgFiles...); err != nil {
			log.WithError(err).Fatal("cannot parse service configuration")
		}
	}

	scope, closer, _ := metrics.InitMetricScope(
		cfg.Metrics, "fuzzing_decision", time.Second)
	defer closer.Close()
	stopRuntimeMetrics := metrics.StartRuntimeCollector(
		scope.SubScope("runtime"), 10*time.Second)
	defer stopRuntimeMetrics()

	catalog, err := machine.LoadCatalog(*machinesFile)
	if err != nil {
		log.WithError(err).Fatal("cannot load machine catalog")
	}
	loader := pool.NewLoader(*poolsDir, scope.SubScope("pool"))

	opts := decision.Options{
		TaskExpiry:            *taskExpiry,
		ReregistrationTimeout: *reregTimeout,
	}

	switch command {
	case checkCmd.FullCommand():
		runCheck(loader, *checkPoolID)
	case tasksCmd.FullCommand():
		index, err := loadIndexMap(*indexMapFile)
		if err != nil {
			log.WithError(err).Fatal("cannot load index map")
		}
		builder := decision.NewBuilder(
			catalog, providersFromTemplates(nil), index, opts,
			scope.SubScope("decision"))
		runTasks(loader, builder, *tasksPoolID, *tasksParent)
	case runCmd.FullCommand():
		client := taskcluster.New(*rootURL)
		builder := decision.NewBuilder(
			catalog, providersFromTemplates(nil), client, opts,
			scope.SubScope("decision"))
		sweeper := decision.NewSweeper(
			client, client, *sweepWindow, scope.SubScope("decision"))
		runDecision(loader, builder, sweeper, client, *runPoolID, *runParent)
	case resourcesCmd.FullCommand():
		providers, err := loadProviders(*launchCfgFile)
		if err != nil {
			log.WithError(err).Fatal("cannot load launch config templates")
		}
		builder := decision.NewBuilder(
			catalog, providers, staticIndex{}, opts, scope.SubScope("decision"))
		runResources(loader, builder, *resourcesPoolID)
	}
}

func runCheck(loader *pool.Loader, poolID string) {
	doc, err := loader.Load(poolPath(poolID))
	if err != nil {
		log.WithError(err).WithField("pool", poolID).Fatal("invalid pool")
	}
	switch d := doc.(type) {
	case *pool.PoolConfiguration:
		printYAML(d)
		fmt.Println("# schedule:")
		for _, cron := range d.CycleCrons() {
			fmt.Printf("#   %s\n", cron)
		}
	case *pool.PoolConfigMap:
		pools, err := d.Pools()
		if err != nil {
			log.WithError(err).WithField("map", poolID).Fatal("invalid pool map")
		}
		for _, p := range pools {
			printYAML(p)
		}
	}
}

// runDecision is the in-task entrypoint: cancel superseded work from
// prior cycles, then build and submit this cycle's graph.
func runDecision(
	loader *pool.Loader,
	builder *decision.Builder,
	sweeper *decision.Sweeper,
	queue decision.Queue,
	poolID string,
	selfTaskID string) {
	doc, err := loader.Load(poolPath(poolID))
	if err != nil {
		log.WithError(err).WithField("pool", poolID).Fatal("invalid pool")
	}

	var tasks []decision.GeneratedTask
	switch d := doc.(type) {
	case *pool.PoolConfiguration:
		// pool maps have no cancellation scope, only single pools sweep
		cancelled, err := sweeper.Sweep(d.WorkerType(), selfTaskID)
		if err != nil {
			log.WithError(err).WithField("pool", poolID).Fatal("sweep failed")
		}
		log.WithFields(log.Fields{
			"pool":      poolID,
			"cancelled": cancelled,
		}).Info("sweep finished")
		tasks, err = builder.BuildTasks(d, selfTaskID, nil)
		if err != nil {
			log.WithError(err).WithField("pool", poolID).Fatal("cannot build tasks")
		}
	case *pool.PoolConfigMap:
		tasks, err = builder.BuildMapTasks(d, selfTaskID, nil)
		if err != nil {
			log.WithError(err).WithField("map", poolID).Fatal("cannot build tasks")
		}
	}

	for _, gt := range tasks {
		if err := queue.CreateTask(gt.TaskID, gt.Task); err != nil {
			log.WithError(err).WithField("task", gt.TaskID).
				Fatal("cannot create task")
		}
	}
	log.WithFields(log.Fields{
		"pool":  poolID,
		"tasks": len(tasks),
	}).Info("decision complete")
}

func runTasks(
	loader *pool.Loader,
	builder *decision.Builder,
	poolID string,
	parentTaskID string) {
	doc, err := loader.Load(poolPath(poolID))
	if err != nil {
		log.WithError(err).WithField("pool", poolID).Fatal("invalid pool")
	}

	var tasks []decision.GeneratedTask
	switch d := doc.(type) {
	case *pool.PoolConfiguration:
		tasks, err = builder.BuildTasks(d, parentTaskID, nil)
	case *pool.PoolConfigMap:
		tasks, err = builder.BuildMapTasks(d, parentTaskID, nil)
	}
	if err != nil {
		log.WithError(err).WithField("pool", poolID).Fatal("cannot build tasks")
	}
	printJSON(tasks)
}

func runResources(loader *pool.Loader, builder *decision.Builder, poolID string) {
	doc, err := loader.Load(poolPath(poolID))
	if err != nil {
		log.WithError(err).WithField("pool", poolID).Fatal("invalid pool")
	}

	var (
		wp   *decision.WorkerPool
		hook *decision.Hook
		role *decision.Role
	)
	switch d := doc.(type) {
	case *pool.PoolConfiguration:
		wp, hook, role, err = builder.BuildResources(d, nil)
	case *pool.PoolConfigMap:
		wp, hook, role, err = builder.BuildMapResources(d, nil)
	}
	if err != nil {
		log.WithError(err).WithField("pool", poolID).Fatal("cannot build resources")
	}
	printJSON(map[string]interface{}{
		"workerPool": wp,
		"hook":       hook,
		"role":       role,
	})
}

func poolPath(poolID string) string {
	return fmt.Sprintf("%s/%s.yml", *poolsDir, poolID)
}

func printYAML(v interface{}) {
	out, err := yaml.Marshal(v)
	if err != nil {
		log.WithError(err).Fatal("cannot render output")
	}
	os.Stdout.Write(out)
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.WithError(err).Fatal("cannot render output")
	}
	os.Stdout.Write(append(out, '\n'))
}

// staticIndex resolves namespaces from a local mapping file, for
// offline generation without the index service.
type staticIndex map[string]string

func (i staticIndex) FindTask(namespace string) (string, error) {
	taskID, ok := i[namespace]
	if !ok {
		return "", fmt.Errorf("namespace %q not in the local index map", namespace)
	}
	return taskID, nil
}

func loadIndexMap(path string) (staticIndex, error) {
	if path == "" {
		return staticIndex{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return staticIndex(m), nil
}

// templateProvider renders launch configs by stamping each matched
// machine shape into the templates declared for an imageset.
type templateProvider struct {
	templates map[string][]decision.LaunchConfig
}

func (p *templateProvider) BuildLaunchConfigs(
	imageset string,
	machines []string,
	diskSize int64,
	platform string) ([]decision.LaunchConfig, error) {
	templates, ok := p.templates[imageset]
	if !ok {
		return nil, fmt.Errorf("no launch config template for imageset %q", imageset)
	}
	var configs []decision.LaunchConfig
	for _, m := range machines {
		for _, tpl := range templates {
			cfg := decision.LaunchConfig{}
			for k, v := range tpl {
				cfg[k] = v
			}
			cfg["machineType"] = m
			cfg["diskSize"] = diskSize
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}

type launchCfgDoc map[string]map[string][]decision.LaunchConfig

func loadProviders(path string) (map[string]decision.CloudProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc launchCfgDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return providersFromTemplates(doc), nil
}

func providersFromTemplates(
	doc launchCfgDoc) map[string]decision.CloudProvider {
	providers := map[string]decision.CloudProvider{}
	for cloud, templates := range doc {
		providers[cloud] = &templateProvider{templates: templates}
	}
	return providers
}
