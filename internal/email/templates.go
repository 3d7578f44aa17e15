package email

// Every body template defines "body" and is rendered inside layoutTemplate.
const layoutTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.AppName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #1f2937; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0ea5e9; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0ea5e9; color: white; text-decoration: none; border-radius: 6px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #e5e7eb; font-size: 12px; color: #6b7280; }
        .link { word-break: break-all; color: #0ea5e9; }
        .notice { background: #fef3c7; padding: 12px; border-radius: 6px; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>
{{template "body" .}}
</body>
</html>`

const verificationEmailTemplate = `{{define "body"}}
    <h2>Welcome, {{.UserName}}!</h2>
    <p>Confirm your email address to finish creating your account.</p>
    <p><a href="{{.VerificationURL}}" class="button">Verify Email Address</a></p>
    <p>Or open this link in your browser:</p>
    <p class="link">{{.VerificationURL}}</p>
    <p>This verification link will expire in 24 hours.</p>
    <div class="footer">
        <p>If you didn't sign up for {{.AppName}}, you can ignore this email.</p>
    </div>
{{end}}`

const passwordResetEmailTemplate = `{{define "body"}}
    <h2>Password Reset Request</h2>
    <p>Hi {{.UserName}},</p>
    <p>Use the button below to choose a new password:</p>
    <p><a href="{{.ResetURL}}" class="button">Reset Password</a></p>
    <p class="link">{{.ResetURL}}</p>
    <div class="notice">
        <strong>Important:</strong> This reset link will expire in 1 hour.
    </div>
    <div class="footer">
        <p>If you didn't request a reset, your password stays unchanged.</p>
    </div>
{{end}}`

const teamInvitationEmailTemplate = `{{define "body"}}
    <h2>You're invited</h2>
    <p>{{.InviterName}} invited you to join their {{.TeamType}} team as {{.MemberRole}}.</p>
    <p><a href="{{.InviteURL}}" class="button">Accept Invitation</a></p>
    <p class="link">{{.InviteURL}}</p>
    <p>This invitation will expire in 7 days.</p>
{{end}}`

const decisionEmailTemplate = `{{define "body"}}
    <p>Hi {{.UserName}},</p>
    {{if .Approved}}
    <h2>Your {{.Kind}} verification was approved</h2>
    <p>You now have full access to {{.AppName}}.</p>
    {{else}}
    <h2>Your {{.Kind}} verification was not approved</h2>
    {{if .Reason}}<div class="notice"><strong>Reason:</strong> {{.Reason}}</div>{{end}}
    <p>You can update your documents and submit again.</p>
    {{end}}
{{end}}`

const projectAcceptedEmailTemplate = `{{define "body"}}
    <p>Hi {{.FounderName}},</p>
    <h2>{{.CounterpartName}} accepted {{.ProjectName}}</h2>
    <p>A private deal room is ready for you.</p>
    <p><a href="{{.RoomURL}}" class="button">Open Room</a></p>
{{end}}`
