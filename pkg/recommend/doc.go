// Package recommend wires the evaluation pipeline and the recommendation
// lifecycle into one service.
//
// Evaluate loads the active rule snapshot of each context type once per
// call, filters the rules with the condition evaluator, scores the
// survivors, ranks them and materializes the top candidates as Shown
// recommendations with stable ids. Results are cached per context, user
// role, context hash and rule set version.
//
// Execute and the Record* operations drive a recommendation through its
// lifecycle. The side effect itself is delegated to an ActionExecutor.
//
// # Basic Usage
//
//	svc := recommend.New(repo, evaluator, engine, tracker,
//	    recommend.WithCache(c),
//	    recommend.WithExecutor(recommend.NewLogExecutor(logger)),
//	)
//
//	resp, err := svc.Evaluate(ctx, &recommend.EvaluateRequest{
//	    Contexts: []*rules.Context{dealContext},
//	})
//
// A context type whose rules cannot be loaded yields a degraded result with
// no recommendations rather than an error.
package recommend
