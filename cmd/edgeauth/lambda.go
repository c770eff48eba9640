package main

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
)

func newLambdaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as a Lambda@Edge viewer-request handler",
		Long: `Starts the AWS Lambda runtime loop and mediates every viewer-request event.
Lambda@Edge functions receive no environment variables, so the built-in
defaults apply there. This is the default command when the binary is started
by the Lambda runtime without arguments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := buildStack(cmd.Context(), a.cfg, a.log)
			if err != nil {
				return err
			}
			defer st.Close()

			lambda.StartWithOptions(st.mediator.HandleEvent, lambda.WithContext(cmd.Context()))
			return nil
		},
	}
}
