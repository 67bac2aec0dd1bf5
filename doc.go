// Package dagent is a session and checkpoint compaction engine for AI agent
// conversations.
//
// It stores per-conversation message history as durable documents, estimates
// the token cost of upcoming requests, and automatically compresses older
// messages into a structured, versioned checkpoint when a request would
// exceed its context budget.
//
// The Engine is the entry point. It is an explicit instance: construct one
// per project root, pass it by reference, and let it go when done.
//
//	store, _ := storage.NewFileStore(projectRoot)
//	engine, _ := dagent.New(dagent.Config{
//	    Store:      store,
//	    Completion: anthropic.New(&client, "claude-3-5-haiku-20241022"),
//	})
//
//	sess, _ := engine.GetOrCreateSession(ctx, session.Coordinates{
//	    AgentType: "builder",
//	    Kind:      types.KindFeature,
//	    FeatureID: "auth",
//	}, agentDescription, contextSnapshot)
//
//	engine.AddMessage(ctx, sess.ID, sess.FeatureID, types.RoleUser, "let's begin", nil)
//
// Every append re-estimates the request budget; crossing the threshold
// triggers compaction in the background. Observers subscribe to lifecycle
// and compaction events through Events().
package dagent
