package featureflag

type Flag string

const (
	FlagDisableThreadedUpdate      Flag = "DISABLE_THREADED_UPDATE"
	FlagDisableThreadedRaycast     Flag = "DISABLE_THREADED_RAYCAST"
	FlagDisableReinsertionFitCheck Flag = "DISABLE_REINSERTION_FIT_CHECK"
	FlagDisableDebugStream         Flag = "DISABLE_DEBUG_STREAM"
	FlagDisableLightAssignment     Flag = "DISABLE_LIGHT_ASSIGNMENT"
)
