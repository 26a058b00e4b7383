// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package stages

import "github.com/poiesic/cartograph/pipeline"

// BuildStages returns all ten stages in dependency order, ready for
// orchestrator registration.
func BuildStages(env *Env, inputDir string) []pipeline.Stage {
	return []pipeline.Stage{
		NewIngest(env, inputDir),
		NewChunking(env),
		NewEmbedding(env),
		NewClustering(env),
		NewTagging(env),
		NewChatSummary(env),
		NewClusterSummary(env),
		NewPositioning(env),
		NewSimilarity(env),
		NewLoading(env),
	}
}
