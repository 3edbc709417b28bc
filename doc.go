// Package distillery generates training data for distilling cross-encoder
// relevance knowledge into a dense-retrieval student model.
//
// The pipeline runs a fixed sequence of stages over a working directory:
// ensure_corpus, generate_queries, mine_negatives, pseudo_label, train, and
// optionally evaluate. Each stage persists one artifact, and a stage whose
// artifact already exists is skipped, so an interrupted run resumes exactly
// where it stopped and deleting one artifact re-runs only the stages that
// depend on it.
//
// # Basic Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	client, err := distillery.NewClient(cfg, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Run(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// External model capabilities (the query generator, the teacher scorer, the
// retrieval embedders, and the trainer) sit behind narrow interfaces and can
// be replaced through Options for testing or alternative backends.
package distillery
