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

package pool

import (
	"github.com/pkg/errors"
)

// ContainerType distinguishes the structured container descriptor forms.
type ContainerType string

// Container descriptor types.
const (
	ContainerDockerImage  ContainerType = "docker-image"
	ContainerIndexedImage ContainerType = "indexed-image"
	ContainerTaskArtifact ContainerType = "task-artifact"
)

// Container is a pool's task image. In YAML it is either a plain docker
// image reference ("org/fuzzer:latest") or a structured descriptor with
// an explicit type.
type Container struct {
	// Image is set for the scalar form only.
	Image string

	Type      ContainerType
	Namespace string
	Path      string
	TaskID    string
}

type containerDoc struct {
	Type      ContainerType `yaml:"type"`
	Image     string        `yaml:"image"`
	Namespace string        `yaml:"namespace"`
	Path      string        `yaml:"path"`
	TaskID    string        `yaml:"task_id"`
}

// UnmarshalYAML accepts both the scalar and the structured form.
func (c *Container) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var image string
	if err := unmarshal(&image); err == nil {
		if image == "" {
			return errors.New("container reference is empty")
		}
		*c = Container{Image: image}
		return nil
	}

	var doc containerDoc
	if err := unmarshal(&doc); err != nil {
		return errors.Wrap(err, "container is neither a string nor a descriptor")
	}
	switch doc.Type {
	case ContainerDockerImage:
		if doc.Image == "" {
			return errors.New("docker-image container needs an image")
		}
	case ContainerIndexedImage:
		if doc.Namespace == "" || doc.Path == "" {
			return errors.New("indexed-image container needs namespace and path")
		}
	case ContainerTaskArtifact:
		if doc.TaskID == "" || doc.Path == "" {
			return errors.New("task-artifact container needs task_id and path")
		}
	default:
		return errors.Errorf("unknown container type %q", doc.Type)
	}
	*c = Container{
		Type:      doc.Type,
		Image:     doc.Image,
		Namespace: doc.Namespace,
		Path:      doc.Path,
		TaskID:    doc.TaskID,
	}
	return nil
}

// IsScalar reports whether the container was declared as a plain docker
// image reference.
func (c *Container) IsScalar() bool {
	return c != nil && c.Type == "" && c.Image != ""
}
